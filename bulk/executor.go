package bulk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/mutation"
	"boardsync/pagestore"
)

// Mutator is the per-task surface the executor fans out over. The
// mutation coordinator satisfies it.
type Mutator interface {
	Update(ctx context.Context, taskID string, upd domain.TaskUpdate) (mutation.Result, error)
	Delete(ctx context.Context, taskID string) (mutation.Result, error)
	SetArchived(ctx context.Context, taskID string, archived bool) (mutation.Result, error)
	Move(ctx context.Context, taskID, columnID string, index int) (mutation.Result, error)
}

type job struct {
	taskID string
	run    func(ctx context.Context, taskID string) error
}

// Executor runs one operation across the current selection: each task
// is an independent submission, failures do not stop the rest, and the
// aggregate error joins every per-task failure. After any bulk run the
// selection is cleared and every column is refreshed, so partial
// failure can never leave the board half-updated.
type Executor struct {
	store   *pagestore.Store
	mut     Mutator
	logger  *log.Logger
	workers int

	mu       sync.Mutex
	selected map[string]struct{}
}

// NewExecutor creates an Executor fanning out over at most workers
// concurrent submissions.
func NewExecutor(store *pagestore.Store, mut Mutator, workers int, logger *log.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		store:    store,
		mut:      mut,
		logger:   logger,
		workers:  workers,
		selected: make(map[string]struct{}),
	}
}

// Select adds a loaded task to the selection set. Unknown ids are
// ignored so a selection cannot reference tasks outside the cache.
func (e *Executor) Select(taskID string) {
	if _, ok := e.store.Get(taskID); !ok {
		return
	}
	e.mu.Lock()
	e.selected[taskID] = struct{}{}
	e.mu.Unlock()
}

// Deselect removes a task from the selection set.
func (e *Executor) Deselect(taskID string) {
	e.mu.Lock()
	delete(e.selected, taskID)
	e.mu.Unlock()
}

// ClearSelection empties the selection set.
func (e *Executor) ClearSelection() {
	e.mu.Lock()
	e.selected = make(map[string]struct{})
	e.mu.Unlock()
}

// Selection returns the selected task ids in stable order.
func (e *Executor) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.selected))
	for id := range e.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// run fans the jobs out over a bounded worker pool, waits for all of
// them, then clears the selection and refreshes every column
// regardless of outcome.
func (e *Executor) run(ctx context.Context, ids []string, fn func(ctx context.Context, taskID string) error) error {
	jobs := make(chan job, len(ids))
	results := make(chan error, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := j.run(ctx, j.taskID); err != nil {
					e.logger.Errorf("bulk submission failed, task: %s, err: %v", j.taskID, err)
					results <- fmt.Errorf("task %s: %w", j.taskID, err)
				}
			}
		}()
	}
	for _, id := range ids {
		jobs <- job{taskID: id, run: fn}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var errs []error
	for err := range results {
		errs = append(errs, err)
	}

	e.ClearSelection()
	if rerr := e.store.RefreshAll(ctx); rerr != nil {
		errs = append(errs, fmt.Errorf("refresh after bulk: %w", rerr))
	}
	return errors.Join(errs...)
}

// Apply applies the same partial update to every selected task.
func (e *Executor) Apply(ctx context.Context, upd domain.TaskUpdate) error {
	return e.run(ctx, e.Selection(), func(ctx context.Context, taskID string) error {
		_, err := e.mut.Update(ctx, taskID, upd)
		return err
	})
}

// SetPriority sets one priority across the selection.
func (e *Executor) SetPriority(ctx context.Context, p domain.Priority) error {
	if !domain.ValidPriority(p) {
		return domain.ErrUnknownPriority
	}
	return e.Apply(ctx, domain.TaskUpdate{Priority: &p})
}

// Archive archives every selected task.
func (e *Executor) Archive(ctx context.Context) error {
	return e.run(ctx, e.Selection(), func(ctx context.Context, taskID string) error {
		_, err := e.mut.SetArchived(ctx, taskID, true)
		return err
	})
}

// Delete deletes every selected task.
func (e *Executor) Delete(ctx context.Context) error {
	return e.run(ctx, e.Selection(), func(ctx context.Context, taskID string) error {
		_, err := e.mut.Delete(ctx, taskID)
		return err
	})
}

// MoveTo appends every selected task to the end of the given column.
// Order within the selection is not preserved across workers; the
// final refresh settles the column view.
func (e *Executor) MoveTo(ctx context.Context, columnID string) error {
	return e.run(ctx, e.Selection(), func(ctx context.Context, taskID string) error {
		tasks := e.store.AllColumnTasks(columnID)
		_, err := e.mut.Move(ctx, taskID, columnID, len(tasks))
		return err
	})
}
