package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtract_PlainText(t *testing.T) {
	text, err := Extract([]byte("hello\r\nworld"), "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello\nworld" {
		t.Errorf("got %q", text)
	}
}

func TestExtract_ContentTypeParameters(t *testing.T) {
	text, err := Extract([]byte("hello"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Errorf("got %q", text)
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	_, err := Extract([]byte("x"), "application/octet-stream")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtract_HTML(t *testing.T) {
	input := `<html><head><style>body{color:red}</style></head>
<body><h1>Title</h1><p>First &amp; second</p><script>alert(1)</script></body></html>`

	text, err := Extract([]byte(input), "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Title") {
		t.Errorf("heading text missing: %q", text)
	}
	if !strings.Contains(text, "First & second") {
		t.Errorf("entity not unescaped: %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script/style content leaked: %q", text)
	}
}

func TestExtract_DOCX(t *testing.T) {
	body := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t xml:space="preserve"> half</w:t></w:r></w:p>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	text, err := Extract(buf.Bytes(),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "First paragraph") {
		t.Errorf("first paragraph missing: %q", text)
	}
	if !strings.Contains(text, "Second half") {
		t.Errorf("runs not joined: %q", text)
	}
}

func TestExtract_DOCXWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("other.xml"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := Extract(buf.Bytes(),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err == nil {
		t.Fatal("expected error for DOCX without document body")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"space runs", "a  \t b", "a b"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"trailing space", "a \nb ", "a\nb"},
		{"surrounding whitespace", "\n\n  hi  \n\n", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	if !Supported("application/pdf") {
		t.Error("pdf should be supported")
	}
	if Supported("image/png") {
		t.Error("png should not be supported")
	}
}
