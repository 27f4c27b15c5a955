package pagestore

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Fetcher loads one page of a column's tasks from the server.
type Fetcher interface {
	ListColumnTasks(ctx context.Context, columnID string, page int, showArchived bool) (domain.TaskPage, error)
}

// ColumnMeta is the ephemeral pagination state tracked per column.
type ColumnMeta struct {
	Page          int
	TotalPages    int
	Total         int
	Loading       bool
	HasMore       bool
	InitialLoaded bool
}

// Store is the client-side cache of loaded tasks: one flat map from
// task id to task, shared by every column, plus per-column pagination
// metadata. Column groupings are always derived from the flat map,
// never stored separately.
type Store struct {
	fetcher Fetcher
	logger  *log.Logger

	mu           sync.Mutex
	tasks        map[string]domain.Task
	meta         map[string]*ColumnMeta
	columns      []domain.Column
	filter       Filter
	showArchived bool
}

// NewStore creates an empty Store backed by the given fetcher.
func NewStore(fetcher Fetcher, logger *log.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		logger:  logger,
		tasks:   make(map[string]domain.Task),
		meta:    make(map[string]*ColumnMeta),
	}
}

// SetColumns replaces the known column list. Metadata for columns that
// disappeared is dropped along with their cached tasks.
func (s *Store) SetColumns(cols []domain.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = append([]domain.Column(nil), cols...)
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c.ID] = struct{}{}
	}
	for id := range s.meta {
		if _, ok := known[id]; !ok {
			delete(s.meta, id)
		}
	}
	for id, t := range s.tasks {
		if _, ok := known[t.ColumnID]; !ok {
			delete(s.tasks, id)
		}
	}
}

// Columns returns the known column list.
func (s *Store) Columns() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Column(nil), s.columns...)
}

func (s *Store) columnMeta(columnID string) *ColumnMeta {
	m, ok := s.meta[columnID]
	if !ok {
		m = &ColumnMeta{}
		s.meta[columnID] = m
	}
	return m
}

// Meta returns a copy of the column's pagination metadata.
func (s *Store) Meta(columnID string) ColumnMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.columnMeta(columnID)
}

// Loading reports the global loading signal: true until every known
// column has completed at least one fetch.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.columns {
		if m, ok := s.meta[c.ID]; !ok || !m.InitialLoaded {
			return true
		}
	}
	return false
}

func (s *Store) merge(page domain.TaskPage, columnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range page.Tasks {
		s.tasks[t.ID] = t
	}
	m := s.columnMeta(columnID)
	m.Page = page.Page
	m.TotalPages = page.TotalPages
	m.Total = page.Total
	m.HasMore = page.HasMore()
	m.Loading = false
	m.InitialLoaded = true
}

func (s *Store) setLoading(columnID string, loading bool) {
	s.mu.Lock()
	s.columnMeta(columnID).Loading = loading
	s.mu.Unlock()
}

// LoadPage fetches page n of a column and merges it into the flat map.
func (s *Store) LoadPage(ctx context.Context, columnID string, page int) error {
	s.mu.Lock()
	archived := s.showArchived
	s.mu.Unlock()

	s.setLoading(columnID, true)
	res, err := s.fetcher.ListColumnTasks(ctx, columnID, page, archived)
	if err != nil {
		s.setLoading(columnID, false)
		return fmt.Errorf("load column %s page %d: %w", columnID, page, err)
	}
	s.merge(res, columnID)
	return nil
}

// LoadInitial starts an independent page-1 fetch for every known column
// in parallel and waits for all of them. The first failure is returned
// but every fetch runs to completion either way.
func (s *Store) LoadInitial(ctx context.Context) error {
	cols := s.Columns()
	errs := make(chan error, len(cols))
	var wg sync.WaitGroup
	for _, c := range cols {
		wg.Add(1)
		go func(columnID string) {
			defer wg.Done()
			errs <- s.LoadPage(ctx, columnID, 1)
		}(c.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadMore fetches the column's next page. It is a no-op when no pages
// remain or a fetch for the column is already in flight.
func (s *Store) LoadMore(ctx context.Context, columnID string) error {
	s.mu.Lock()
	m := s.columnMeta(columnID)
	if !m.HasMore || m.Loading {
		s.mu.Unlock()
		return nil
	}
	next := m.Page + 1
	s.mu.Unlock()
	return s.LoadPage(ctx, columnID, next)
}

// Refresh purges every task currently mapped to the column and reloads
// page 1, so entries invalidated by a filter change cannot linger.
func (s *Store) Refresh(ctx context.Context, columnID string) error {
	s.mu.Lock()
	for id, t := range s.tasks {
		if t.ColumnID == columnID {
			delete(s.tasks, id)
		}
	}
	delete(s.meta, columnID)
	s.mu.Unlock()
	return s.LoadPage(ctx, columnID, 1)
}

// RefreshAll refreshes every known column.
func (s *Store) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, c := range s.Columns() {
		if err := s.Refresh(ctx, c.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Get returns the task by id if it is loaded.
func (s *Store) Get(taskID string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	return t, ok
}

// Upsert writes a task into the flat map, overwriting by id. This is
// the single code path for "a task entry in my cache changed": local
// optimistic applies, server confirmations and remote broadcast events
// all land here.
func (s *Store) Upsert(t domain.Task) {
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
}

// Remove drops a task from the flat map.
func (s *Store) Remove(taskID string) {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
}

// Len returns the number of loaded tasks across all columns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ApplyEvent folds a broadcast event into the flat map exactly the way
// a local confirmation would.
func (s *Store) ApplyEvent(ev domain.Event) {
	switch ev.Name {
	case domain.TaskCreated, domain.TaskUpdated, domain.TaskMoved, domain.TaskArchived:
		if ev.Task != nil {
			s.Upsert(*ev.Task)
		}
	case domain.TaskDeleted:
		s.Remove(ev.TaskID)
	case domain.TaskBulkArchived:
		s.mu.Lock()
		for _, id := range ev.TaskIDs {
			if t, ok := s.tasks[id]; ok {
				t.IsArchived = true
				s.tasks[id] = t
			}
		}
		s.mu.Unlock()
	default:
		s.logger.Debugf("ignoring unknown event %s", ev.Name)
	}
}

// SetFilter replaces the read-time filter. The flat map is untouched
// and nothing is refetched.
func (s *Store) SetFilter(f Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// ShowArchived reports whether archived tasks are currently visible.
func (s *Store) ShowArchived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showArchived
}

// SetShowArchived toggles archived visibility. Unlike every other
// filter this refetches all columns, because archived tasks may never
// have been fetched under the default server-side filter.
func (s *Store) SetShowArchived(ctx context.Context, show bool) error {
	s.mu.Lock()
	if s.showArchived == show {
		s.mu.Unlock()
		return nil
	}
	s.showArchived = show
	s.mu.Unlock()
	return s.RefreshAll(ctx)
}

func (s *Store) columnTasks(columnID string, filtered bool) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Task{}
	for _, t := range s.tasks {
		if t.ColumnID != columnID || t.IsDeleted {
			continue
		}
		if t.IsArchived && !s.showArchived {
			continue
		}
		if filtered && !s.filter.Match(t) {
			continue
		}
		out = append(out, t)
	}
	domain.SortByOrder(out)
	return out
}

// ColumnTasks derives the column's visible task list from the flat
// map: filtered, archived-aware, sorted ascending by columnOrder.
func (s *Store) ColumnTasks(columnID string) []domain.Task {
	return s.columnTasks(columnID, true)
}

// AllColumnTasks is ColumnTasks without the read-time filter. Ordering
// keys must be computed against this list, so tasks hidden by a filter
// still count as neighbors and their keys cannot be collided with.
func (s *Store) AllColumnTasks(columnID string) []domain.Task {
	return s.columnTasks(columnID, false)
}

// GroupedByColumn derives the whole board view.
func (s *Store) GroupedByColumn() map[string][]domain.Task {
	grouped := make(map[string][]domain.Task)
	for _, c := range s.Columns() {
		grouped[c.ID] = s.ColumnTasks(c.ID)
	}
	return grouped
}
