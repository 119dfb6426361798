package tasks

import (
	"strings"

	"github.com/tgienger/tareas/internal/models"
)

// Criteria selects the visible tasks. A non-empty Search overrides Status.
type Criteria struct {
	Status models.Filter
	Search string
}

// Visible returns the tasks matching c in their original order.
// With a search term, tasks whose title or description contains it
// (ignoring case) are kept regardless of status.
func Visible(tasks []models.Task, c Criteria) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	if c.Search != "" {
		needle := strings.ToLower(c.Search)
		for _, t := range tasks {
			if strings.Contains(strings.ToLower(t.Title), needle) ||
				strings.Contains(strings.ToLower(t.Description), needle) {
				out = append(out, t)
			}
		}
		return out
	}

	status := c.Status
	if status == "" {
		status = models.FilterAll
	}
	for _, t := range tasks {
		if status.Matches(t.Status) {
			out = append(out, t)
		}
	}
	return out
}
