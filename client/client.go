package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"

	"boardsync/domain"
)

// Client is the HTTP board API client. It implements the fetcher used
// by the page store and the remote used by the mutation coordinator.
type Client struct {
	baseURL     string
	workspaceID string
	bearer      string
	http        *http.Client
}

// New creates a Client scoped to one workspace.
func New(baseURL, workspaceID, bearer string) *Client {
	return &Client{
		baseURL:     baseURL,
		workspaceID: workspaceID,
		bearer:      bearer,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	buf := new(bytes.Buffer)
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf.Write(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := sonic.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := sonic.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) wsPath(suffix string) string {
	return "/api/workspaces/" + url.PathEscape(c.workspaceID) + suffix
}

// Columns fetches the workspace's column list, the ground truth the
// page store is seeded with.
func (c *Client) Columns(ctx context.Context) ([]domain.Column, error) {
	var cols []domain.Column
	if err := c.do(ctx, http.MethodGet, c.wsPath("/columns"), nil, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// ListColumnTasks fetches one page of a column's tasks.
func (c *Client) ListColumnTasks(ctx context.Context, columnID string, page int, showArchived bool) (domain.TaskPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	if showArchived {
		q.Set("archived", "include")
	}
	path := c.wsPath("/columns/" + url.PathEscape(columnID) + "/tasks?" + q.Encode())
	var tp domain.TaskPage
	if err := c.do(ctx, http.MethodGet, path, nil, &tp); err != nil {
		return domain.TaskPage{}, err
	}
	return tp, nil
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	if err := c.do(ctx, http.MethodGet, c.wsPath("/tasks/"+url.PathEscape(taskID)), nil, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CreateTask persists a new task and returns it with the server id.
func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var created domain.Task
	if err := c.do(ctx, http.MethodPost, c.wsPath("/tasks"), t, &created); err != nil {
		return domain.Task{}, err
	}
	return created, nil
}

// UpdateTask applies a partial update and returns the stored task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	var updated domain.Task
	if err := c.do(ctx, http.MethodPatch, c.wsPath("/tasks/"+url.PathEscape(taskID)), upd, &updated); err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, c.wsPath("/tasks/"+url.PathEscape(taskID)), nil, nil)
}

// SetArchived archives or unarchives a task.
func (c *Client) SetArchived(ctx context.Context, taskID string, archived bool) (domain.Task, error) {
	verb := "/archive"
	if !archived {
		verb = "/unarchive"
	}
	var t domain.Task
	if err := c.do(ctx, http.MethodPost, c.wsPath("/tasks/"+url.PathEscape(taskID)+verb), nil, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Watch subscribes the caller to a task.
func (c *Client) Watch(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	if err := c.do(ctx, http.MethodPost, c.wsPath("/tasks/"+url.PathEscape(taskID)+"/watch"), nil, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Unwatch unsubscribes the caller from a task.
func (c *Client) Unwatch(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	if err := c.do(ctx, http.MethodPost, c.wsPath("/tasks/"+url.PathEscape(taskID)+"/unwatch"), nil, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
