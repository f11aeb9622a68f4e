package dashboard

import (
	"strings"

	"consultation-desk/models"

	"golang.org/x/text/cases"
)

// Filter keeps the records whose name, furigana or content contains query,
// ignoring case. An empty query returns records unchanged.
func Filter(records []models.Consultation, query string) []models.Consultation {
	if query == "" {
		return records
	}

	fold := cases.Fold()
	needle := fold.String(query)

	out := make([]models.Consultation, 0, len(records))
	for _, r := range records {
		if strings.Contains(fold.String(r.Name), needle) ||
			strings.Contains(fold.String(r.Furigana), needle) ||
			strings.Contains(fold.String(r.Content), needle) {
			out = append(out, r)
		}
	}
	return out
}
