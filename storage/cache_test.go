package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

type stubBackend struct {
	listCalls int
	getCalls  int
	page      domain.TaskPage
	listErr   error
	updateErr error
}

func (s *stubBackend) Columns(context.Context, string) ([]domain.Column, error) {
	return []domain.Column{{ID: "todo", Name: "To Do"}}, nil
}

func (s *stubBackend) ListColumnTasks(_ context.Context, _, _ string, q PageQuery) (domain.TaskPage, error) {
	s.listCalls++
	return s.page, s.listErr
}

func (s *stubBackend) GetTask(_ context.Context, _, taskID string) (domain.Task, error) {
	s.getCalls++
	return domain.Task{ID: taskID}, nil
}

func (s *stubBackend) CreateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	return t, nil
}

func (s *stubBackend) UpdateTask(_ context.Context, _, taskID string, _ domain.TaskUpdate) (domain.Task, error) {
	if s.updateErr != nil {
		return domain.Task{}, s.updateErr
	}
	return domain.Task{ID: taskID}, nil
}

func (s *stubBackend) DeleteTask(context.Context, string, string) error { return nil }

func (s *stubBackend) SetArchived(_ context.Context, _, taskID string, archived bool) (domain.Task, error) {
	return domain.Task{ID: taskID, IsArchived: archived}, nil
}

func (s *stubBackend) Watch(_ context.Context, _, taskID, _ string) (domain.Task, error) {
	return domain.Task{ID: taskID}, nil
}

func (s *stubBackend) Unwatch(_ context.Context, _, taskID, _ string) (domain.Task, error) {
	return domain.Task{ID: taskID}, nil
}

func (s *stubBackend) BulkApply(_ context.Context, _ string, ids []string, _ domain.TaskUpdate) ([]domain.Task, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return nil, nil
}

func (s *stubBackend) BulkDelete(_ context.Context, _ string, ids []string) ([]string, error) {
	return ids, nil
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(base, client, time.Minute), mr
}

func TestCacheListMissThenHit(t *testing.T) {
	base := &stubBackend{page: domain.TaskPage{Tasks: []domain.Task{{ID: "t1"}}, Page: 1, TotalPages: 1, Total: 1}}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()
	q := PageQuery{Page: 1, PageSize: 20}

	for i := 0; i < 2; i++ {
		page, err := cache.ListColumnTasks(ctx, "ws1", "todo", q)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if page.Total != 1 || page.Tasks[0].ID != "t1" {
			t.Fatalf("unexpected page: %+v", page)
		}
	}
	if base.listCalls != 1 {
		t.Fatalf("want 1 backend call, got %d", base.listCalls)
	}
}

func TestCacheEvictedOnWrite(t *testing.T) {
	base := &stubBackend{page: domain.TaskPage{Page: 1}}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()
	q := PageQuery{Page: 1, PageSize: 20}

	if _, err := cache.ListColumnTasks(ctx, "ws1", "todo", q); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := cache.UpdateTask(ctx, "ws1", "t1", domain.TaskUpdate{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := cache.ListColumnTasks(ctx, "ws1", "todo", q); err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("write must invalidate cached pages, got %d backend calls", base.listCalls)
	}
}

func TestCacheEvictsEvenWhenBulkPartiallyFails(t *testing.T) {
	base := &stubBackend{page: domain.TaskPage{Page: 1}}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()
	q := PageQuery{Page: 1, PageSize: 20}

	if _, err := cache.ListColumnTasks(ctx, "ws1", "todo", q); err != nil {
		t.Fatalf("list: %v", err)
	}
	base.updateErr = errors.New("boom")
	if _, err := cache.BulkApply(ctx, "ws1", []string{"t1"}, domain.TaskUpdate{}); err != nil {
		// Aggregate failure is expected; the eviction must still happen.
		_ = err
	}
	if _, err := cache.ListColumnTasks(ctx, "ws1", "todo", q); err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("bulk failure must still invalidate, got %d backend calls", base.listCalls)
	}
}

func TestCachePointReadsDelegateToAnyBackend(t *testing.T) {
	base := &stubBackend{}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()

	cols, err := cache.Columns(ctx, "ws1")
	if err != nil || len(cols) != 1 || cols[0].ID != "todo" {
		t.Fatalf("columns = %+v, %v", cols, err)
	}
	task, err := cache.GetTask(ctx, "ws1", "t1")
	if err != nil || task.ID != "t1" {
		t.Fatalf("task = %+v, %v", task, err)
	}
	if base.getCalls != 1 {
		t.Fatalf("want 1 GetTask call on the backend, got %d", base.getCalls)
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	base := &stubBackend{page: domain.TaskPage{Page: 1}}
	cache := NewCache(base, nil, time.Minute)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := cache.ListColumnTasks(ctx, "ws1", "todo", PageQuery{Page: 1}); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if base.listCalls != 2 {
		t.Fatalf("nil redis must pass through, got %d calls", base.listCalls)
	}
}
