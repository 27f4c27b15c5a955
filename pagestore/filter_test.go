package pagestore

import (
	"testing"
	"time"

	"boardsync/domain"
)

func TestFilterZeroMatchesAll(t *testing.T) {
	if !(Filter{}).Match(domain.Task{ID: "t1"}) {
		t.Fatal("zero filter must match everything")
	}
}

func TestFilterAssigneesAndLabels(t *testing.T) {
	task := domain.Task{Assignees: []string{"u1"}, Labels: []string{"backend", "urgent"}}
	if !(Filter{Assignees: []string{"u1", "u9"}}).Match(task) {
		t.Fatal("assignee overlap must match")
	}
	if (Filter{Assignees: []string{"u2"}}).Match(task) {
		t.Fatal("disjoint assignees must not match")
	}
	if !(Filter{Labels: []string{"urgent"}}).Match(task) {
		t.Fatal("label overlap must match")
	}
}

func TestFilterPriorityAndKeyword(t *testing.T) {
	task := domain.Task{Title: "Fix Login Bug", Description: "OAuth redirect", Priority: domain.PriorityHigh}
	if !(Filter{Priorities: []domain.Priority{domain.PriorityHigh}}).Match(task) {
		t.Fatal("priority must match")
	}
	if (Filter{Priorities: []domain.Priority{domain.PriorityLow}}).Match(task) {
		t.Fatal("other priority must not match")
	}
	if !(Filter{Keyword: "login"}).Match(task) {
		t.Fatal("keyword must match title case-insensitively")
	}
	if !(Filter{Keyword: "oauth"}).Match(task) {
		t.Fatal("keyword must match description")
	}
	if (Filter{Keyword: "quarterly report"}).Match(task) {
		t.Fatal("absent keyword must not match")
	}
}

func TestFilterDueDateRange(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	early := due.AddDate(0, -1, 0)
	late := due.AddDate(0, 1, 0)
	task := domain.Task{DueDate: &due}

	if !(Filter{DueAfter: &early, DueBefore: &late}).Match(task) {
		t.Fatal("date inside range must match")
	}
	if (Filter{DueAfter: &late}).Match(task) {
		t.Fatal("date before range must not match")
	}
	if (Filter{DueBefore: &early}).Match(task) {
		t.Fatal("date after range must not match")
	}
	if (Filter{DueAfter: &early}).Match(domain.Task{}) {
		t.Fatal("missing due date must not match a date filter")
	}
}
