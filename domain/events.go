package domain

const (
	TaskCreated      = "task:created"
	TaskUpdated      = "task:updated"
	TaskMoved        = "task:moved"
	TaskDeleted      = "task:deleted"
	TaskArchived     = "task:archived"
	TaskBulkArchived = "task:bulk-archived"
)

// Event is the envelope broadcast to every client in a workspace room
// after a server-confirmed mutation. Delivery is at-most-once; a client
// that misses an event catches up on its next full refresh.
type Event struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	// UserID identifies the acting user so receivers can apply their
	// own-echo logic if they want to.
	UserID string `json:"userId"`

	// Task carries the full updated entity for created/updated/moved/
	// archived events. Deleted events carry only TaskID.
	Task    *Task    `json:"task,omitempty"`
	TaskID  string   `json:"taskId,omitempty"`
	TaskIDs []string `json:"taskIds,omitempty"`

	// Set on task:moved so clients can show move-specific affordances;
	// the event is otherwise shaped like a normal update.
	FromColumnID string `json:"fromColumnId,omitempty"`
	ToColumnID   string `json:"toColumnId,omitempty"`
}
