package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/mutation"
	"boardsync/pagestore"
)

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

// stubMutator records per-task calls and fails the ids listed in fail.
type stubMutator struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	maxBusy int
	busy    int
}

func newStubMutator() *stubMutator {
	return &stubMutator{fail: make(map[string]error)}
}

func (m *stubMutator) record(taskID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, taskID)
	m.busy++
	if m.busy > m.maxBusy {
		m.maxBusy = m.busy
	}
	err := m.fail[taskID]
	m.mu.Unlock()

	time.Sleep(time.Millisecond)

	m.mu.Lock()
	m.busy--
	m.mu.Unlock()
	return err
}

func (m *stubMutator) Update(_ context.Context, taskID string, _ domain.TaskUpdate) (mutation.Result, error) {
	if err := m.record(taskID); err != nil {
		return mutation.Result{Outcome: mutation.OutcomeRolledBack}, err
	}
	return mutation.Result{Outcome: mutation.OutcomeConfirmed}, nil
}

func (m *stubMutator) Delete(_ context.Context, taskID string) (mutation.Result, error) {
	if err := m.record(taskID); err != nil {
		return mutation.Result{Outcome: mutation.OutcomeRolledBack}, err
	}
	return mutation.Result{Outcome: mutation.OutcomeConfirmed}, nil
}

func (m *stubMutator) SetArchived(_ context.Context, taskID string, _ bool) (mutation.Result, error) {
	if err := m.record(taskID); err != nil {
		return mutation.Result{Outcome: mutation.OutcomeRolledBack}, err
	}
	return mutation.Result{Outcome: mutation.OutcomeConfirmed}, nil
}

func (m *stubMutator) Move(_ context.Context, taskID, _ string, _ int) (mutation.Result, error) {
	if err := m.record(taskID); err != nil {
		return mutation.Result{Outcome: mutation.OutcomeRolledBack}, err
	}
	return mutation.Result{Outcome: mutation.OutcomeConfirmed}, nil
}

type countingFetcher struct {
	mu      sync.Mutex
	tasks   map[string][]domain.Task
	fetches int
}

func (f *countingFetcher) ListColumnTasks(_ context.Context, columnID string, page int, _ bool) (domain.TaskPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	tasks := f.tasks[columnID]
	return domain.TaskPage{Tasks: tasks, Page: page, TotalPages: 1, Total: len(tasks)}, nil
}

func newFixture(t *testing.T, n int) (*Executor, *stubMutator, *pagestore.Store, *countingFetcher) {
	t.Helper()
	f := &countingFetcher{tasks: make(map[string][]domain.Task)}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("t%02d", i)
		f.tasks["todo"] = append(f.tasks["todo"], domain.Task{ID: id, ColumnID: "todo", ColumnOrder: float64(i)})
	}
	store := pagestore.NewStore(f, testLogger())
	store.SetColumns([]domain.Column{{ID: "todo", Order: 0}, {ID: "done", Order: 1}})
	if err := store.LoadInitial(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	mut := newStubMutator()
	return NewExecutor(store, mut, 4, testLogger()), mut, store, f
}

func TestSelectionIgnoresUnknownIDs(t *testing.T) {
	e, _, _, _ := newFixture(t, 3)
	e.Select("t00")
	e.Select("ghost")
	e.Select("t02")
	if got := e.Selection(); len(got) != 2 || got[0] != "t00" || got[1] != "t02" {
		t.Fatalf("selection = %v", got)
	}
	e.Deselect("t00")
	if got := e.Selection(); len(got) != 1 || got[0] != "t02" {
		t.Fatalf("selection after deselect = %v", got)
	}
}

func TestArchiveRunsEverySubmission(t *testing.T) {
	e, mut, _, _ := newFixture(t, 5)
	for i := 0; i < 5; i++ {
		e.Select(fmt.Sprintf("t%02d", i))
	}
	if err := e.Archive(context.Background()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(mut.calls) != 5 {
		t.Fatalf("submissions = %d, want 5", len(mut.calls))
	}
	if got := e.Selection(); len(got) != 0 {
		t.Fatalf("selection not cleared: %v", got)
	}
}

// Partial failure: the failing submission does not stop the others,
// the aggregate error names it, and the selection is still cleared
// with a full refresh afterwards.
func TestPartialFailureAggregates(t *testing.T) {
	e, mut, _, f := newFixture(t, 4)
	boom := errors.New("boom")
	mut.fail["t01"] = boom
	mut.fail["t03"] = boom
	for i := 0; i < 4; i++ {
		e.Select(fmt.Sprintf("t%02d", i))
	}

	f.mu.Lock()
	before := f.fetches
	f.mu.Unlock()

	err := e.Delete(context.Background())
	if err == nil {
		t.Fatal("aggregate error missing")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("aggregate does not wrap the failure: %v", err)
	}
	if len(mut.calls) != 4 {
		t.Fatalf("failure stopped the fan-out: %d calls", len(mut.calls))
	}
	if got := e.Selection(); len(got) != 0 {
		t.Fatal("selection must clear even on failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches != before+2 {
		t.Fatalf("full refresh missing after bulk: %d fetches", f.fetches-before)
	}
}

func TestWorkerBoundRespected(t *testing.T) {
	e, mut, _, _ := newFixture(t, 20)
	for i := 0; i < 20; i++ {
		e.Select(fmt.Sprintf("t%02d", i))
	}
	if err := e.Archive(context.Background()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if mut.maxBusy > 4 {
		t.Fatalf("observed %d concurrent submissions, bound is 4", mut.maxBusy)
	}
}

func TestSetPriorityValidatesFirst(t *testing.T) {
	e, mut, _, _ := newFixture(t, 2)
	e.Select("t00")
	if err := e.SetPriority(context.Background(), domain.Priority("blocker")); !errors.Is(err, domain.ErrUnknownPriority) {
		t.Fatalf("err = %v, want unknown priority", err)
	}
	if len(mut.calls) != 0 {
		t.Fatal("invalid priority must not reach the coordinator")
	}
	if got := e.Selection(); len(got) != 1 {
		t.Fatal("rejected bulk must keep the selection")
	}
}

func TestMoveToAppends(t *testing.T) {
	e, mut, _, _ := newFixture(t, 3)
	e.Select("t00")
	e.Select("t01")
	if err := e.MoveTo(context.Background(), "done"); err != nil {
		t.Fatalf("move to: %v", err)
	}
	if len(mut.calls) != 2 {
		t.Fatalf("submissions = %d, want 2", len(mut.calls))
	}
}
