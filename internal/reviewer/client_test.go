package reviewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		BaseURL:     url,
		APIKey:      "test-key",
		Model:       "review-model",
		GuardrailID: "guardrail-1",
		Timeout:     2 * time.Second,
	})
}

func TestClient_ReviewSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		msgs, _ := req["messages"].([]interface{})
		if len(msgs) != 2 {
			t.Errorf("expected a two-message exchange, got %d", len(msgs))
		}
		if req["guardrail"] != "guardrail-1" {
			t.Errorf("guardrail id missing from request: %v", req["guardrail"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     "Summary:\nLooks fine.\n\nScore: 8",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 120, "output_tokens": 40, "total_tokens": 160},
			"guardrail":   map[string]interface{}{"action": "NONE"},
		})
	}))
	defer srv.Close()

	review, err := newTestClient(srv.URL).Review(context.Background(), "document text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !review.Success || review.Blocked {
		t.Errorf("success=%v blocked=%v", review.Success, review.Blocked)
	}
	if review.Usage.Total != 160 || review.Usage.Input != 120 {
		t.Errorf("usage = %+v", review.Usage)
	}
	if review.SafetyVerdict != "NONE" {
		t.Errorf("safetyVerdict = %q", review.SafetyVerdict)
	}
	if review.StopReason != "end_turn" {
		t.Errorf("stopReason = %q", review.StopReason)
	}
}

func TestClient_ReviewBlockedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     "",
			"stop_reason": "guardrail_intervened",
			"usage":       map[string]int{"input_tokens": 80, "output_tokens": 0},
			"guardrail": map[string]interface{}{
				"action":   "BLOCKED",
				"entities": []string{"EMAIL", "NAME"},
			},
		})
	}))
	defer srv.Close()

	review, err := newTestClient(srv.URL).Review(context.Background(), "document text")
	if err != nil {
		t.Fatalf("guardrail block must not be an error, got %v", err)
	}
	if !review.Blocked || review.Success {
		t.Errorf("success=%v blocked=%v", review.Success, review.Blocked)
	}
	if len(review.FlaggedEntities) != 2 {
		t.Errorf("flagged entities = %v", review.FlaggedEntities)
	}
	if review.Usage.Total != 80 {
		t.Errorf("total usage not derived from parts: %+v", review.Usage)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		errType  string
		errMsg   string
		wantCode domain.ErrorCode
	}{
		{"bad request", 400, "invalid_request", "", domain.ErrCodeInvalidRequest},
		{"bad auth", 401, "authentication_error", "", domain.ErrCodeAuthenticationError},
		{"forbidden", 403, "permission_error", "", domain.ErrCodeAccessDenied},
		{"missing model", 404, "not_found_error", "", domain.ErrCodeResourceNotFound},
		{"gateway timeout", 504, "", "", domain.ErrCodeTimeout},
		{"throttled", 429, "rate_limit_error", "too many requests", domain.ErrCodeRateLimitExceeded},
		{"quota", 429, "rate_limit_error", "monthly token quota exhausted", domain.ErrCodeTokenQuotaExceeded},
		{"overloaded", 503, "overloaded_error", "", domain.ErrCodeServiceUnavailable},
		{"teapot", 418, "", "", domain.ErrCodeUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"type": tt.errType, "message": tt.errMsg},
				})
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Review(context.Background(), "text")
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestClient_TransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(&Config{
		BaseURL: srv.URL,
		Model:   "review-model",
		Timeout: 50 * time.Millisecond,
	})

	_, err := client.Review(context.Background(), "text")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if got := CodeOf(err); got != domain.ErrCodeTimeout {
		t.Errorf("code = %q, want Timeout", got)
	}
}
