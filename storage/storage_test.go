package storage

import (
	"reflect"
	"testing"
	"time"

	"boardsync/domain"
)

func TestEntityRoundTrip(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := domain.Task{
		ID:          "t1",
		WorkspaceID: "ws1",
		Title:       "Ship it",
		Description: "final pass",
		ColumnID:    "doing",
		ColumnOrder: 2.5,
		Priority:    domain.PriorityHigh,
		Assignees:   []string{"u1", "u2"},
		Watchers:    []string{"u3"},
		Labels:      []string{"backend"},
		BlockedBy:   []string{"t0"},
		DueDate:     &due,
		Subtasks:    []domain.Subtask{{Title: "review", Completed: true, AssigneeID: "u1"}},
		IsArchived:  true,
	}
	got := fromEntity(toEntity(task))
	if !reflect.DeepEqual(task, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", task, got)
	}
}

func TestEntityEmptySets(t *testing.T) {
	got := fromEntity(toEntity(domain.Task{ID: "t1", WorkspaceID: "ws1", ColumnID: "todo"}))
	if got.Assignees != nil || got.BlockedBy != nil || got.Subtasks != nil {
		t.Fatalf("empty sets must stay nil: %+v", got)
	}
	if got.StartDate != nil || got.DueDate != nil {
		t.Fatalf("unset dates must stay nil: %+v", got)
	}
}

func TestArchiveFilter(t *testing.T) {
	if got := archiveFilter(ArchivedExclude); got != " and IsArchived eq false" {
		t.Fatalf("exclude: %q", got)
	}
	if got := archiveFilter(ArchivedOnly); got != " and IsArchived eq true" {
		t.Fatalf("only: %q", got)
	}
	if got := archiveFilter(ArchivedInclude); got != "" {
		t.Fatalf("include: %q", got)
	}
	// Unknown modes fall back to the board default.
	if got := archiveFilter(ArchivedMode("")); got != " and IsArchived eq false" {
		t.Fatalf("default: %q", got)
	}
}

func TestPaginate(t *testing.T) {
	tasks := make([]domain.Task, 45)
	for i := range tasks {
		tasks[i] = domain.Task{ID: string(rune('a' + i%26)), ColumnOrder: float64(i)}
	}
	p1 := paginate(tasks, 1, 20)
	if len(p1.Tasks) != 20 || p1.Total != 45 || p1.TotalPages != 3 || p1.Page != 1 {
		t.Fatalf("page 1: %+v", p1)
	}
	p3 := paginate(tasks, 3, 20)
	if len(p3.Tasks) != 5 || p3.Page != 3 {
		t.Fatalf("page 3: %+v", p3)
	}
	p9 := paginate(tasks, 9, 20)
	if len(p9.Tasks) != 0 || p9.Total != 45 {
		t.Fatalf("page past end: %+v", p9)
	}
	p0 := paginate(tasks, 0, 20)
	if p0.Page != 1 || len(p0.Tasks) != 20 {
		t.Fatalf("page 0 clamps to 1: %+v", p0)
	}
	empty := paginate(nil, 1, 20)
	if empty.Total != 0 || empty.TotalPages != 0 || len(empty.Tasks) != 0 {
		t.Fatalf("empty column: %+v", empty)
	}
}

func TestSortTasksDefault(t *testing.T) {
	tasks := []domain.Task{
		{ID: "b", ColumnOrder: 1},
		{ID: "c", ColumnOrder: 0.5},
		{ID: "a", ColumnOrder: 0.5},
	}
	sortTasks(tasks, "", false)
	if tasks[0].ID != "a" || tasks[1].ID != "c" || tasks[2].ID != "b" {
		t.Fatalf("order wrong: %v %v %v", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestSortTasksDueDate(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "none"},
		{ID: "late", DueDate: &late},
		{ID: "early", DueDate: &early},
	}
	sortTasks(tasks, "dueDate", false)
	if tasks[0].ID != "early" || tasks[1].ID != "late" || tasks[2].ID != "none" {
		t.Fatalf("due-date order wrong: %v %v %v", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}
