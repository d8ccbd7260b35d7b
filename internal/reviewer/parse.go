package reviewer

import (
	"strings"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
)

// ParseSections splits the reviewer's raw response into its named
// sections. The parser is deliberately tolerant: unknown lines attach to
// the current section and a malformed response still yields the raw text
// untouched elsewhere in the result.
func ParseSections(raw string) domain.ReviewSections {
	var sections domain.ReviewSections

	current := ""
	var summary []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		lowered := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lowered, "summary:"):
			current = "summary"
			if rest := strings.TrimSpace(trimmed[len("summary:"):]); rest != "" {
				summary = append(summary, rest)
			}
			continue
		case strings.HasPrefix(lowered, "issues:"):
			current = "issues"
			continue
		case strings.HasPrefix(lowered, "recommendations:"):
			current = "recommendations"
			continue
		case strings.HasPrefix(lowered, "score:"):
			sections.Score = strings.TrimSpace(trimmed[len("score:"):])
			current = ""
			continue
		}

		switch current {
		case "summary":
			summary = append(summary, trimmed)
		case "issues":
			sections.Issues = append(sections.Issues, trimBullet(trimmed))
		case "recommendations":
			sections.Recommendations = append(sections.Recommendations, trimBullet(trimmed))
		}
	}

	sections.Summary = strings.Join(summary, " ")
	return sections
}

func trimBullet(line string) string {
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "* ")
	return strings.TrimSpace(line)
}
