package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

type backend interface {
	Columns(ctx context.Context, workspaceID string) ([]domain.Column, error)
	ListColumnTasks(ctx context.Context, workspaceID, columnID string, q PageQuery) (domain.TaskPage, error)
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

// Cache wraps a task storage backend with redis-backed caching of
// listing reads. Any write bumps the workspace generation, which
// invalidates every cached page of that workspace at once.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching storage wrapper using the provided redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// Columns delegates to the backend. The column list is small and
// changes rarely; caching it is not worth the staleness window.
func (c *Cache) Columns(ctx context.Context, workspaceID string) ([]domain.Column, error) {
	return c.base.Columns(ctx, workspaceID)
}

// GetTask delegates to the backend.
func (c *Cache) GetTask(ctx context.Context, workspaceID, taskID string) (domain.Task, error) {
	return c.base.GetTask(ctx, workspaceID, taskID)
}

func (c *Cache) generation(ctx context.Context, workspaceID string) int64 {
	if c.redis == nil {
		return 0
	}
	gen, err := c.redis.Get(ctx, genKey(workspaceID)).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (c *Cache) evict(ctx context.Context, workspaceID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, genKey(workspaceID)).Err()
}

func genKey(workspaceID string) string {
	return "boardgen:" + workspaceID
}

func pageKey(workspaceID, columnID string, q PageQuery, gen int64) string {
	return fmt.Sprintf("boardpage:%s:%s:%d:%d:%s:%t:%s:g%d",
		workspaceID, columnID, q.Page, q.PageSize, q.SortField, q.SortDesc, q.Archived, gen)
}

func (c *Cache) ListColumnTasks(ctx context.Context, workspaceID, columnID string, q PageQuery) (domain.TaskPage, error) {
	if c.redis == nil || c.ttl == 0 {
		return c.base.ListColumnTasks(ctx, workspaceID, columnID, q)
	}
	key := pageKey(workspaceID, columnID, q, c.generation(ctx, workspaceID))
	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var page domain.TaskPage
		if err := json.Unmarshal(data, &page); err == nil {
			return page, nil
		}
		_ = c.redis.Del(ctx, key).Err()
	}

	page, err := c.base.ListColumnTasks(ctx, workspaceID, columnID, q)
	if err != nil {
		return domain.TaskPage{}, err
	}
	if data, err := json.Marshal(page); err == nil {
		_ = c.redis.Set(ctx, key, data, c.ttl).Err()
	}
	return page, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.WorkspaceID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, workspaceID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, workspaceID, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, workspaceID)
	return task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	if err := c.base.DeleteTask(ctx, workspaceID, taskID); err != nil {
		return err
	}
	c.evict(ctx, workspaceID)
	return nil
}

func (c *Cache) SetArchived(ctx context.Context, workspaceID, taskID string, archived bool) (domain.Task, error) {
	task, err := c.base.SetArchived(ctx, workspaceID, taskID, archived)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, workspaceID)
	return task, nil
}

func (c *Cache) Watch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error) {
	task, err := c.base.Watch(ctx, workspaceID, taskID, userID)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, workspaceID)
	return task, nil
}

func (c *Cache) Unwatch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error) {
	task, err := c.base.Unwatch(ctx, workspaceID, taskID, userID)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, workspaceID)
	return task, nil
}

func (c *Cache) BulkApply(ctx context.Context, workspaceID string, taskIDs []string, upd domain.TaskUpdate) ([]domain.Task, error) {
	updated, err := c.base.BulkApply(ctx, workspaceID, taskIDs, upd)
	// Some items may have applied even when err != nil.
	c.evict(ctx, workspaceID)
	return updated, err
}

func (c *Cache) BulkDelete(ctx context.Context, workspaceID string, taskIDs []string) ([]string, error) {
	deleted, err := c.base.BulkDelete(ctx, workspaceID, taskIDs)
	c.evict(ctx, workspaceID)
	return deleted, err
}
