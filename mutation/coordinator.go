package mutation

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/pagestore"
)

// Remote is the persistence surface the coordinator writes through.
// Every call is an asynchronous I/O boundary; the coordinator always
// awaits one write before touching the same column again.
type Remote interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	SetArchived(ctx context.Context, taskID string, archived bool) (domain.Task, error)
	Watch(ctx context.Context, taskID string) (domain.Task, error)
	Unwatch(ctx context.Context, taskID string) (domain.Task, error)
}

// Outcome is the terminal state of an optimistic mutation.
type Outcome string

const (
	// OutcomeConfirmed means the server accepted the write and the
	// local entry now holds the authoritative response.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRolledBack means the write failed and the optimistic
	// state was discarded by refreshing from the server.
	OutcomeRolledBack Outcome = "rolled-back"
)

// Result reports how a mutation settled.
type Result struct {
	Outcome Outcome
	Task    domain.Task
}

// ErrUnknownTask rejects a mutation for a task id that is not loaded.
var ErrUnknownTask = errors.New("task not loaded")

// Coordinator applies task mutations optimistically to the local page
// store, issues the remote write, and reconciles: on success the local
// entry is overwritten with the server response, on failure the
// affected columns are refreshed so no optimistic residue survives.
type Coordinator struct {
	store  *pagestore.Store
	remote Remote
	userID string
	logger *log.Logger
}

// NewCoordinator creates a Coordinator acting as userID.
func NewCoordinator(store *pagestore.Store, remote Remote, userID string, logger *log.Logger) *Coordinator {
	return &Coordinator{store: store, remote: remote, userID: userID, logger: logger}
}

// rollback is the compensating action of every failed mutation: a full
// refresh of each affected column. It always runs on failure, never on
// success, and refresh errors are logged rather than masking the
// original failure.
func (c *Coordinator) rollback(ctx context.Context, columns ...string) {
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col == "" {
			continue
		}
		if _, ok := seen[col]; ok {
			continue
		}
		seen[col] = struct{}{}
		if err := c.store.Refresh(ctx, col); err != nil {
			c.logger.Errorf("rollback refresh of column %s: %v", col, err)
		}
	}
}

type storeLookup struct {
	store *pagestore.Store
}

func (l storeLookup) BlockedBy(_ context.Context, taskID string) ([]string, error) {
	t, ok := l.store.Get(taskID)
	if !ok {
		return nil, nil
	}
	return t.BlockedBy, nil
}

// Create waits for the server-assigned id before inserting into the
// flat map; there is no optimistic phase because the client never
// mints task ids.
func (c *Coordinator) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if len(t.BlockedBy) > 0 {
		if err := domain.ValidateBlockedBy(ctx, storeLookup{c.store}, t.ID, t.BlockedBy); err != nil {
			return domain.Task{}, err
		}
	}
	created, err := c.remote.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	c.store.Upsert(created)
	return created, nil
}

// Update applies a partial edit optimistically and reconciles with the
// server response.
func (c *Coordinator) Update(ctx context.Context, taskID string, upd domain.TaskUpdate) (Result, error) {
	current, ok := c.store.Get(taskID)
	if !ok {
		return Result{}, fmt.Errorf("update %s: %w", taskID, ErrUnknownTask)
	}
	if upd.BlockedBy != nil {
		if err := domain.ValidateBlockedBy(ctx, storeLookup{c.store}, taskID, *upd.BlockedBy); err != nil {
			return Result{}, err
		}
	}

	optimistic := current
	optimistic.Apply(upd)
	c.store.Upsert(optimistic)

	confirmed, err := c.remote.UpdateTask(ctx, taskID, upd)
	if err != nil {
		cols := []string{current.ColumnID}
		if upd.ColumnID != nil {
			cols = append(cols, *upd.ColumnID)
		}
		c.rollback(ctx, cols...)
		return Result{Outcome: OutcomeRolledBack}, fmt.Errorf("update %s: %w", taskID, err)
	}
	c.store.Upsert(confirmed)
	return Result{Outcome: OutcomeConfirmed, Task: confirmed}, nil
}

// Move places the task at visual index within the destination column,
// computing the fractional key against the destination's current list
// before anything is applied. Column id and order travel in one update.
func (c *Coordinator) Move(ctx context.Context, taskID, columnID string, index int) (Result, error) {
	if _, ok := c.store.Get(taskID); !ok {
		return Result{}, fmt.Errorf("move %s: %w", taskID, ErrUnknownTask)
	}
	dest := c.store.AllColumnTasks(columnID)
	keys := make([]float64, 0, len(dest))
	for _, t := range dest {
		if t.ID == taskID {
			continue
		}
		keys = append(keys, t.ColumnOrder)
	}
	key := domain.KeyAt(keys, index)
	return c.Update(ctx, taskID, domain.TaskUpdate{ColumnID: &columnID, ColumnOrder: &key})
}

// Reorder renumbers a whole column to match orderedIDs: each task gets
// its list index as the new key. This is the one operation allowed to
// renumber, since it already touches every affected row.
func (c *Coordinator) Reorder(ctx context.Context, columnID string, orderedIDs []string) error {
	keys := domain.RenumberKeys(len(orderedIDs))
	for i, id := range orderedIDs {
		current, ok := c.store.Get(id)
		if !ok || current.ColumnID != columnID {
			return fmt.Errorf("reorder %s: %w", id, ErrUnknownTask)
		}
		optimistic := current
		optimistic.ColumnOrder = keys[i]
		c.store.Upsert(optimistic)
	}

	var errs []error
	for i, id := range orderedIDs {
		if _, err := c.remote.UpdateTask(ctx, id, domain.TaskUpdate{ColumnOrder: &keys[i]}); err != nil {
			errs = append(errs, fmt.Errorf("reorder %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		c.rollback(ctx, columnID)
		return errors.Join(errs...)
	}
	return nil
}

// SetArchived archives or unarchives optimistically.
func (c *Coordinator) SetArchived(ctx context.Context, taskID string, archived bool) (Result, error) {
	current, ok := c.store.Get(taskID)
	if !ok {
		return Result{}, fmt.Errorf("archive %s: %w", taskID, ErrUnknownTask)
	}
	optimistic := current
	optimistic.IsArchived = archived
	c.store.Upsert(optimistic)

	confirmed, err := c.remote.SetArchived(ctx, taskID, archived)
	if err != nil {
		c.rollback(ctx, current.ColumnID)
		return Result{Outcome: OutcomeRolledBack}, fmt.Errorf("archive %s: %w", taskID, err)
	}
	c.store.Upsert(confirmed)
	return Result{Outcome: OutcomeConfirmed, Task: confirmed}, nil
}

// Delete removes the task from the flat map immediately; a failed
// remote delete restores it via refresh.
func (c *Coordinator) Delete(ctx context.Context, taskID string) (Result, error) {
	current, ok := c.store.Get(taskID)
	if !ok {
		return Result{}, fmt.Errorf("delete %s: %w", taskID, ErrUnknownTask)
	}
	c.store.Remove(taskID)

	if err := c.remote.DeleteTask(ctx, taskID); err != nil {
		c.rollback(ctx, current.ColumnID)
		return Result{Outcome: OutcomeRolledBack}, fmt.Errorf("delete %s: %w", taskID, err)
	}
	return Result{Outcome: OutcomeConfirmed}, nil
}

// Watch subscribes the acting user to the task's notifications.
func (c *Coordinator) Watch(ctx context.Context, taskID string) (Result, error) {
	return c.setWatching(ctx, taskID, true)
}

// Unwatch removes the acting user from the task's watchers.
func (c *Coordinator) Unwatch(ctx context.Context, taskID string) (Result, error) {
	return c.setWatching(ctx, taskID, false)
}

func (c *Coordinator) setWatching(ctx context.Context, taskID string, watch bool) (Result, error) {
	current, ok := c.store.Get(taskID)
	if !ok {
		return Result{}, fmt.Errorf("watch %s: %w", taskID, ErrUnknownTask)
	}

	optimistic := current
	watchers := make([]string, 0, len(current.Watchers)+1)
	for _, w := range current.Watchers {
		if w != c.userID {
			watchers = append(watchers, w)
		}
	}
	if watch {
		watchers = append(watchers, c.userID)
	}
	optimistic.Watchers = watchers
	c.store.Upsert(optimistic)

	var confirmed domain.Task
	var err error
	if watch {
		confirmed, err = c.remote.Watch(ctx, taskID)
	} else {
		confirmed, err = c.remote.Unwatch(ctx, taskID)
	}
	if err != nil {
		c.rollback(ctx, current.ColumnID)
		return Result{Outcome: OutcomeRolledBack}, fmt.Errorf("watch %s: %w", taskID, err)
	}
	c.store.Upsert(confirmed)
	return Result{Outcome: OutcomeConfirmed, Task: confirmed}, nil
}
