package api

import (
	"context"

	"boardsync/domain"
	"boardsync/storage"
)

// Storage abstracts persistence for handlers. Both the direct table
// storage and its redis-cached wrapper satisfy it.
type Storage interface {
	Columns(ctx context.Context, workspaceID string) ([]domain.Column, error)
	ListColumnTasks(ctx context.Context, workspaceID, columnID string, q storage.PageQuery) (domain.TaskPage, error)
	GetTask(ctx context.Context, workspaceID, taskID string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, workspaceID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, workspaceID, taskID string) error
	SetArchived(ctx context.Context, workspaceID, taskID string, archived bool) (domain.Task, error)
	Watch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error)
	Unwatch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error)
	BulkApply(ctx context.Context, workspaceID string, taskIDs []string, upd domain.TaskUpdate) ([]domain.Task, error)
	BulkDelete(ctx context.Context, workspaceID string, taskIDs []string) ([]string, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents double application of retried mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, workspaceID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails.
	Remove(ctx context.Context, workspaceID, key string) error
}
