package pagestore

import (
	"strings"
	"time"

	"boardsync/domain"
)

// Filter is a pure read-time filter over the flat map. A zero Filter
// matches everything. Filters never mutate the map and never trigger a
// refetch; archived visibility is handled by Store.SetShowArchived.
type Filter struct {
	Assignees  []string
	Labels     []string
	Priorities []domain.Priority
	Keyword    string
	DueAfter   *time.Time
	DueBefore  *time.Time
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Match reports whether the task passes every set criterion.
func (f Filter) Match(t domain.Task) bool {
	if len(f.Assignees) > 0 && !containsAny(t.Assignees, f.Assignees) {
		return false
	}
	if len(f.Labels) > 0 && !containsAny(t.Labels, f.Labels) {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if t.Priority == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		if !strings.Contains(strings.ToLower(t.Title), kw) &&
			!strings.Contains(strings.ToLower(t.Description), kw) {
			return false
		}
	}
	if f.DueAfter != nil {
		if t.DueDate == nil || t.DueDate.Before(*f.DueAfter) {
			return false
		}
	}
	if f.DueBefore != nil {
		if t.DueDate == nil || t.DueDate.After(*f.DueBefore) {
			return false
		}
	}
	return true
}
