package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"boardsync/domain"
)

// ArchivedMode selects how archived tasks participate in a listing.
type ArchivedMode string

const (
	// ArchivedExclude hides archived tasks (board default).
	ArchivedExclude ArchivedMode = "exclude"
	// ArchivedInclude returns active and archived tasks together.
	ArchivedInclude ArchivedMode = "include"
	// ArchivedOnly returns archived tasks only.
	ArchivedOnly ArchivedMode = "only"
)

// PageQuery selects one page of a column's tasks.
type PageQuery struct {
	Page      int
	PageSize  int
	SortField string
	SortDesc  bool
	Archived  ArchivedMode
}

// Storage provides access to the tasks and columns tables.
//
// Conflicting concurrent writes to the same task resolve last-write-wins:
// updates replace the whole entity without ETag checks, and clients
// reconcile through a full refetch on error.
type Storage struct {
	taskTable   *aztables.Client
	columnTable *aztables.Client
	pageSize    int
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, columnsTable string, pageSize int) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Storage{
		taskTable:   svc.NewClient(tasksTable),
		columnTable: svc.NewClient(columnsTable),
		pageSize:    pageSize,
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string  `json:"Title"`
	Description string  `json:"Description"`
	ColumnID    string  `json:"ColumnId"`
	ColumnOrder float64 `json:"ColumnOrder"`
	Priority    string  `json:"Priority"`
	Assignees   string  `json:"Assignees"`
	Watchers    string  `json:"Watchers"`
	Labels      string  `json:"Labels"`
	BlockedBy   string  `json:"BlockedBy"`
	StartDate   string  `json:"StartDate"`
	DueDate     string  `json:"DueDate"`
	Subtasks    string  `json:"Subtasks"`
	IsArchived  bool    `json:"IsArchived"`
	IsDeleted   bool    `json:"IsDeleted"`
}

type columnEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Color string `json:"Color"`
	Order int    `json:"Order"`
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func toEntity(t domain.Task) taskEntity {
	subtasks := ""
	if len(t.Subtasks) > 0 {
		data, _ := json.Marshal(t.Subtasks)
		subtasks = string(data)
	}
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.WorkspaceID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		ColumnID:    t.ColumnID,
		ColumnOrder: t.ColumnOrder,
		Priority:    string(t.Priority),
		Assignees:   encodeStrings(t.Assignees),
		Watchers:    encodeStrings(t.Watchers),
		Labels:      encodeStrings(t.Labels),
		BlockedBy:   encodeStrings(t.BlockedBy),
		StartDate:   encodeTime(t.StartDate),
		DueDate:     encodeTime(t.DueDate),
		Subtasks:    subtasks,
		IsArchived:  t.IsArchived,
		IsDeleted:   t.IsDeleted,
	}
}

func fromEntity(ent taskEntity) domain.Task {
	var subtasks []domain.Subtask
	if ent.Subtasks != "" {
		_ = json.Unmarshal([]byte(ent.Subtasks), &subtasks)
	}
	return domain.Task{
		ID:          ent.RowKey,
		WorkspaceID: ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		ColumnID:    ent.ColumnID,
		ColumnOrder: ent.ColumnOrder,
		Priority:    domain.Priority(ent.Priority),
		Assignees:   decodeStrings(ent.Assignees),
		Watchers:    decodeStrings(ent.Watchers),
		Labels:      decodeStrings(ent.Labels),
		BlockedBy:   decodeStrings(ent.BlockedBy),
		StartDate:   decodeTime(ent.StartDate),
		DueDate:     decodeTime(ent.DueDate),
		Subtasks:    subtasks,
		IsArchived:  ent.IsArchived,
		IsDeleted:   ent.IsDeleted,
	}
}

// Columns returns the workspace's column list ordered by Order. It is
// the ground truth against which every columnId write is validated.
func (s *Storage) Columns(ctx context.Context, workspaceID string) ([]domain.Column, error) {
	filter := "PartitionKey eq '" + workspaceID + "'"
	pager := s.columnTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	cols := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			cols = append(cols, domain.Column{ID: ent.RowKey, Name: ent.Name, Color: ent.Color, Order: ent.Order})
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols, nil
}

func archiveFilter(mode ArchivedMode) string {
	switch mode {
	case ArchivedInclude:
		return ""
	case ArchivedOnly:
		return " and IsArchived eq true"
	default:
		return " and IsArchived eq false"
	}
}

func (s *Storage) columnTasks(ctx context.Context, workspaceID, columnID string, mode ArchivedMode) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + workspaceID + "' and ColumnId eq '" + columnID + "' and IsDeleted eq false" + archiveFilter(mode)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, fromEntity(ent))
		}
	}
	return tasks, nil
}

func sortTasks(tasks []domain.Task, field string, desc bool) {
	less := func(i, j int) bool {
		switch field {
		case "dueDate":
			a, b := tasks[i].DueDate, tasks[j].DueDate
			if a == nil || b == nil {
				return a != nil
			}
			return a.Before(*b)
		case "title":
			return tasks[i].Title < tasks[j].Title
		default:
			if tasks[i].ColumnOrder != tasks[j].ColumnOrder {
				return tasks[i].ColumnOrder < tasks[j].ColumnOrder
			}
			return tasks[i].ID < tasks[j].ID
		}
	}
	if desc {
		sort.SliceStable(tasks, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(tasks, less)
	}
}

// ListColumnTasks returns page q.Page of the column's tasks plus the
// pagination envelope. Pages are 1-based. The lister walks the table
// pager fully and slices; board-sized columns keep this cheap and the
// redis cache in front absorbs repeats.
func (s *Storage) ListColumnTasks(ctx context.Context, workspaceID, columnID string, q PageQuery) (domain.TaskPage, error) {
	tasks, err := s.columnTasks(ctx, workspaceID, columnID, q.Archived)
	if err != nil {
		return domain.TaskPage{}, err
	}
	sortTasks(tasks, q.SortField, q.SortDesc)

	size := q.PageSize
	if size <= 0 {
		size = s.pageSize
	}
	return paginate(tasks, q.Page, size), nil
}

func paginate(tasks []domain.Task, page, size int) domain.TaskPage {
	if page <= 0 {
		page = 1
	}
	total := len(tasks)
	totalPages := (total + size - 1) / size
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return domain.TaskPage{Tasks: tasks[start:end], Page: page, TotalPages: totalPages, Total: total}
}

func (s *Storage) getEntity(ctx context.Context, workspaceID, taskID string) (taskEntity, error) {
	resp, err := s.taskTable.GetEntity(ctx, workspaceID, taskID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return taskEntity{}, domain.NotFoundError{Kind: "task", ID: taskID}
		}
		return taskEntity{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return taskEntity{}, err
	}
	return ent, nil
}

// GetTask fetches a single task. Soft-deleted tasks read as not found.
func (s *Storage) GetTask(ctx context.Context, workspaceID, taskID string) (domain.Task, error) {
	ent, err := s.getEntity(ctx, workspaceID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if ent.IsDeleted {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: taskID}
	}
	return fromEntity(ent), nil
}

func (s *Storage) validateColumn(ctx context.Context, workspaceID, columnID string) error {
	cols, err := s.Columns(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !domain.HasColumn(cols, columnID) {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrUnknownColumn)
	}
	return nil
}

// BlockerLookup adapts the store to domain.BlockerLookup for one workspace.
func (s *Storage) BlockerLookup(workspaceID string) domain.BlockerLookup {
	return blockerLookup{s: s, workspaceID: workspaceID}
}

type blockerLookup struct {
	s           *Storage
	workspaceID string
}

func (l blockerLookup) BlockedBy(ctx context.Context, taskID string) ([]string, error) {
	ent, err := l.s.getEntity(ctx, l.workspaceID, taskID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if ent.IsDeleted {
		return nil, nil
	}
	return decodeStrings(ent.BlockedBy), nil
}

// CreateTask inserts a task at the end of its column and returns the
// stored record. The caller may leave ID empty to have one minted.
func (s *Storage) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(t.Priority) {
		return domain.Task{}, domain.ErrUnknownPriority
	}
	if err := s.validateColumn(ctx, t.WorkspaceID, t.ColumnID); err != nil {
		return domain.Task{}, err
	}
	if len(t.BlockedBy) > 0 {
		if err := domain.ValidateBlockedBy(ctx, s.BlockerLookup(t.WorkspaceID), t.ID, t.BlockedBy); err != nil {
			return domain.Task{}, err
		}
	}

	siblings, err := s.columnTasks(ctx, t.WorkspaceID, t.ColumnID, ArchivedInclude)
	if err != nil {
		return domain.Task{}, err
	}
	t.ColumnOrder = domain.AppendKey(domain.OrderKeys(siblings))
	t.IsDeleted = false

	data, err := json.Marshal(toEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask applies a partial edit and returns the stored record.
// A columnId change is validated against the current column list and
// persisted together with the new columnOrder in one write.
func (s *Storage) UpdateTask(ctx context.Context, workspaceID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	if upd.Priority != nil && !domain.ValidPriority(*upd.Priority) {
		return domain.Task{}, domain.ErrUnknownPriority
	}
	if upd.ColumnID != nil {
		if err := s.validateColumn(ctx, workspaceID, *upd.ColumnID); err != nil {
			return domain.Task{}, err
		}
	}
	if upd.BlockedBy != nil {
		if err := domain.ValidateBlockedBy(ctx, s.BlockerLookup(workspaceID), taskID, *upd.BlockedBy); err != nil {
			return domain.Task{}, err
		}
	}

	task, err := s.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	task.Apply(upd)
	if err := s.put(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *Storage) put(ctx context.Context, t domain.Task) error {
	data, err := json.Marshal(toEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteTask soft-deletes a task. The row is never hard-removed here.
func (s *Storage) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	task, err := s.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return err
	}
	task.IsDeleted = true
	return s.put(ctx, task)
}

// SetArchived archives or unarchives a task.
func (s *Storage) SetArchived(ctx context.Context, workspaceID, taskID string, archived bool) (domain.Task, error) {
	return s.UpdateTask(ctx, workspaceID, taskID, domain.TaskUpdate{IsArchived: &archived})
}

// Watch adds userID to the task's watcher set.
func (s *Storage) Watch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error) {
	task, err := s.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, w := range task.Watchers {
		if w == userID {
			return task, nil
		}
	}
	task.Watchers = append(task.Watchers, userID)
	if err := s.put(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Unwatch removes userID from the task's watcher set.
func (s *Storage) Unwatch(ctx context.Context, workspaceID, taskID, userID string) (domain.Task, error) {
	task, err := s.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	kept := task.Watchers[:0]
	for _, w := range task.Watchers {
		if w != userID {
			kept = append(kept, w)
		}
	}
	task.Watchers = kept
	if err := s.put(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// BulkApply applies one partial edit to every listed task. Items are
// independent; the aggregate error joins every per-item failure and
// successful items stay applied (no cross-batch atomicity).
func (s *Storage) BulkApply(ctx context.Context, workspaceID string, taskIDs []string, upd domain.TaskUpdate) ([]domain.Task, error) {
	updated := make([]domain.Task, 0, len(taskIDs))
	var errs []error
	for _, id := range taskIDs {
		task, err := s.UpdateTask(ctx, workspaceID, id, upd)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		updated = append(updated, task)
	}
	return updated, errors.Join(errs...)
}

// BulkDelete soft-deletes every listed task with the same aggregate
// contract as BulkApply. The returned slice holds the ids that were
// actually deleted, so callers can announce those even when the rest
// of the batch failed.
func (s *Storage) BulkDelete(ctx context.Context, workspaceID string, taskIDs []string) ([]string, error) {
	deleted := make([]string, 0, len(taskIDs))
	var errs []error
	for _, id := range taskIDs {
		if err := s.DeleteTask(ctx, workspaceID, id); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, errors.Join(errs...)
}
