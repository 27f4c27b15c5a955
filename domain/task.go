package domain

import (
	"sort"
	"time"
)

// Priority ranks a task's urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Subtask is a single checklist entry owned by a task.
type Subtask struct {
	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	AssigneeID string `json:"assigneeId,omitempty"`
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ColumnID    string     `json:"columnId"`
	ColumnOrder float64    `json:"columnOrder"`
	Priority    Priority   `json:"priority"`
	Assignees   []string   `json:"assignees,omitempty"`
	Watchers    []string   `json:"watchers,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	BlockedBy   []string   `json:"blockedBy,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
	IsArchived  bool       `json:"isArchived,omitempty"`
	IsDeleted   bool       `json:"isDeleted,omitempty"`
}

// Column is a named, colored, ordered bucket of tasks inside a workspace.
type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Order int    `json:"order"`
}

// TaskUpdate carries a partial edit. Nil fields are left untouched.
type TaskUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	ColumnID    *string     `json:"columnId,omitempty"`
	ColumnOrder *float64    `json:"columnOrder,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Assignees   *[]string   `json:"assignees,omitempty"`
	Watchers    *[]string   `json:"watchers,omitempty"`
	Labels      *[]string   `json:"labels,omitempty"`
	BlockedBy   *[]string   `json:"blockedBy,omitempty"`
	StartDate   *time.Time  `json:"startDate,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
	Subtasks    *[]Subtask  `json:"subtasks,omitempty"`
	IsArchived  *bool       `json:"isArchived,omitempty"`
}

// MovesColumn reports whether the update changes the task's column.
func (u TaskUpdate) MovesColumn(current string) bool {
	return u.ColumnID != nil && *u.ColumnID != current
}

// Apply copies every set field of u onto t.
func (t *Task) Apply(u TaskUpdate) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.ColumnID != nil {
		t.ColumnID = *u.ColumnID
	}
	if u.ColumnOrder != nil {
		t.ColumnOrder = *u.ColumnOrder
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Assignees != nil {
		t.Assignees = *u.Assignees
	}
	if u.Watchers != nil {
		t.Watchers = *u.Watchers
	}
	if u.Labels != nil {
		t.Labels = *u.Labels
	}
	if u.BlockedBy != nil {
		t.BlockedBy = *u.BlockedBy
	}
	if u.StartDate != nil {
		t.StartDate = u.StartDate
	}
	if u.DueDate != nil {
		t.DueDate = u.DueDate
	}
	if u.Subtasks != nil {
		t.Subtasks = *u.Subtasks
	}
	if u.IsArchived != nil {
		t.IsArchived = *u.IsArchived
	}
}

// SortByOrder sorts tasks ascending by columnOrder, ties broken by id.
func SortByOrder(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].ColumnOrder != tasks[j].ColumnOrder {
			return tasks[i].ColumnOrder < tasks[j].ColumnOrder
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// ColumnIDs extracts the id of every column in order.
func ColumnIDs(cols []Column) []string {
	ids := make([]string, len(cols))
	for i, c := range cols {
		ids[i] = c.ID
	}
	return ids
}

// HasColumn reports whether id names one of the workspace's current columns.
func HasColumn(cols []Column, id string) bool {
	for _, c := range cols {
		if c.ID == id {
			return true
		}
	}
	return false
}
