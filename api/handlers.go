package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/broadcast"
	"boardsync/domain"
	"boardsync/storage"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all board API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, router *broadcast.Router, deduper Deduper, logger *log.Logger) {
	h := &handlers{store: store, auth: auth, router: router, deduper: deduper, logger: logger}

	e.GET("/healthz", h.healthz)

	g := e.Group("/api/workspaces/:ws")
	g.GET("/columns", h.getColumns)
	g.GET("/columns/:col/tasks", h.listColumnTasks)
	g.GET("/tasks/:id", h.getTask)
	g.POST("/tasks", h.createTask)
	g.PATCH("/tasks/:id", h.updateTask)
	g.DELETE("/tasks/:id", h.deleteTask)
	g.POST("/tasks/:id/archive", h.setArchived(true))
	g.POST("/tasks/:id/unarchive", h.setArchived(false))
	g.POST("/tasks/:id/watch", h.setWatching(true))
	g.POST("/tasks/:id/unwatch", h.setWatching(false))
	g.POST("/tasks/bulk", h.bulk)
	g.GET("/stream", h.stream)
}

type handlers struct {
	store   Storage
	auth    Authenticator
	router  *broadcast.Router
	deduper Deduper
	logger  *log.Logger
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) userID(c echo.Context) (string, error) {
	return h.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

// writeError maps domain failures onto HTTP statuses. The body always
// carries {"message": ...} so clients surface one shape everywhere.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSelfDependency), errors.Is(err, domain.ErrCircularDependency):
		status = http.StatusUnprocessableEntity
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, echo.Map{"message": err.Error()})
}

func (h *handlers) getColumns(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	cols, err := h.store.Columns(c.Request().Context(), c.Param("ws"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cols)
}

func parseArchivedMode(raw string) (storage.ArchivedMode, error) {
	switch storage.ArchivedMode(raw) {
	case "", storage.ArchivedExclude:
		return storage.ArchivedExclude, nil
	case storage.ArchivedInclude:
		return storage.ArchivedInclude, nil
	case storage.ArchivedOnly:
		return storage.ArchivedOnly, nil
	}
	return "", domain.ValidationError{Reason: "invalid archived mode"}
}

func (h *handlers) listColumnTasks(c echo.Context) (err error) {
	metrics := newRequestMetrics(c.Path(), h.logger)
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	_, authErr := h.userID(c)
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		err = c.JSON(http.StatusUnauthorized, echo.Map{"message": authErr.Error()})
		return err
	}

	q := storage.PageQuery{Page: 1}
	if raw := strings.TrimSpace(c.QueryParam("page")); raw != "" {
		q.Page, err = strconv.Atoi(raw)
		if err != nil || q.Page <= 0 {
			metrics.SetErrorStage("invalid_page")
			err = c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid page"})
			return err
		}
	}
	if raw := strings.TrimSpace(c.QueryParam("pageSize")); raw != "" {
		q.PageSize, err = strconv.Atoi(raw)
		if err != nil || q.PageSize <= 0 {
			metrics.SetErrorStage("invalid_page_size")
			err = c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid page size"})
			return err
		}
	}
	q.SortField = c.QueryParam("sort")
	q.SortDesc = c.QueryParam("desc") == "true"
	q.Archived, err = parseArchivedMode(c.QueryParam("archived"))
	if err != nil {
		metrics.SetErrorStage("invalid_archived_mode")
		return writeError(c, err)
	}

	fetchStart := time.Now()
	page, fetchErr := h.store.ListColumnTasks(c.Request().Context(), c.Param("ws"), c.Param("col"), q)
	metrics.ObserveFetch(time.Since(fetchStart))
	if fetchErr != nil {
		metrics.SetErrorStage("storage")
		err = writeError(c, fetchErr)
		return err
	}
	metrics.SetTasksReturned(len(page.Tasks))
	metrics.SetHasNextPage(page.HasMore())

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, page)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (h *handlers) getTask(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	t, err := h.store.GetTask(c.Request().Context(), c.Param("ws"), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// claimIdempotency records the request's Idempotency-Key, when one is
// sent, and reports whether the request may proceed. The returned
// release func rolls the claim back so a failed write can be retried.
func (h *handlers) claimIdempotency(c echo.Context, workspaceID string) (proceed bool, release func(), err error) {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" || h.deduper == nil {
		return true, func() {}, nil
	}
	ctx := c.Request().Context()
	added, err := h.deduper.Add(ctx, workspaceID, key)
	if err != nil {
		return false, nil, err
	}
	if !added {
		return false, nil, nil
	}
	return true, func() {
		if rerr := h.deduper.Remove(ctx, workspaceID, key); rerr != nil {
			h.logger.Errorf("dedupe rollback failed, key: %s, workspace: %s, err: %v", key, workspaceID, rerr)
		}
	}, nil
}

func (h *handlers) createTask(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	ws := c.Param("ws")

	proceed, release, err := h.claimIdempotency(c, ws)
	if err != nil {
		return writeError(c, err)
	}
	if !proceed {
		return c.JSON(http.StatusConflict, echo.Map{"message": "duplicate request"})
	}

	var t domain.Task
	if err := decodeBody(c, &t); err != nil {
		release()
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	t.WorkspaceID = ws

	created, err := h.store.CreateTask(c.Request().Context(), t)
	if err != nil {
		release()
		return writeError(c, err)
	}
	h.router.Emit(c.Request().Context(), broadcast.WorkspaceRoom(ws), domain.Event{
		Name: domain.TaskCreated, WorkspaceID: ws, UserID: userID, Task: &created,
	})
	return c.JSON(http.StatusCreated, created)
}

func (h *handlers) updateTask(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	ws, taskID := c.Param("ws"), c.Param("id")

	var upd domain.TaskUpdate
	if err := decodeBody(c, &upd); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}

	ctx := c.Request().Context()
	before, err := h.store.GetTask(ctx, ws, taskID)
	if err != nil {
		return writeError(c, err)
	}

	updated, err := h.store.UpdateTask(ctx, ws, taskID, upd)
	if err != nil {
		return writeError(c, err)
	}

	ev := domain.Event{Name: domain.TaskUpdated, WorkspaceID: ws, UserID: userID, Task: &updated}
	if upd.MovesColumn(before.ColumnID) {
		ev.Name = domain.TaskMoved
		ev.FromColumnID = before.ColumnID
		ev.ToColumnID = updated.ColumnID
	}
	h.router.Emit(ctx, broadcast.WorkspaceRoom(ws), ev)
	return c.JSON(http.StatusOK, updated)
}

func (h *handlers) deleteTask(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	ws, taskID := c.Param("ws"), c.Param("id")

	ctx := c.Request().Context()
	if err := h.store.DeleteTask(ctx, ws, taskID); err != nil {
		return writeError(c, err)
	}
	h.router.Emit(ctx, broadcast.WorkspaceRoom(ws), domain.Event{
		Name: domain.TaskDeleted, WorkspaceID: ws, UserID: userID, TaskID: taskID,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) setArchived(archived bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := h.userID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
		}
		ws, taskID := c.Param("ws"), c.Param("id")

		ctx := c.Request().Context()
		t, err := h.store.SetArchived(ctx, ws, taskID, archived)
		if err != nil {
			return writeError(c, err)
		}
		name := domain.TaskArchived
		if !archived {
			name = domain.TaskUpdated
		}
		h.router.Emit(ctx, broadcast.WorkspaceRoom(ws), domain.Event{
			Name: name, WorkspaceID: ws, UserID: userID, Task: &t,
		})
		return c.JSON(http.StatusOK, t)
	}
}

func (h *handlers) setWatching(watch bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := h.userID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
		}
		ws, taskID := c.Param("ws"), c.Param("id")

		ctx := c.Request().Context()
		var t domain.Task
		if watch {
			t, err = h.store.Watch(ctx, ws, taskID, userID)
		} else {
			t, err = h.store.Unwatch(ctx, ws, taskID, userID)
		}
		if err != nil {
			return writeError(c, err)
		}
		h.router.Emit(ctx, broadcast.WorkspaceRoom(ws), domain.Event{
			Name: domain.TaskUpdated, WorkspaceID: ws, UserID: userID, Task: &t,
		})
		return c.JSON(http.StatusOK, t)
	}
}

type bulkRequest struct {
	TaskIDs []string           `json:"taskIds"`
	Action  string             `json:"action"`
	Update  *domain.TaskUpdate `json:"update,omitempty"`
}

type bulkResponse struct {
	Tasks  []domain.Task `json:"tasks,omitempty"`
	Failed bool          `json:"failed"`
}

// bulk applies one action to many tasks. Per-task failures do not stop
// the rest; the response reports the tasks that did change and whether
// anything failed.
func (h *handlers) bulk(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}
	ws := c.Param("ws")

	proceed, release, err := h.claimIdempotency(c, ws)
	if err != nil {
		return writeError(c, err)
	}
	if !proceed {
		return c.JSON(http.StatusConflict, echo.Map{"message": "duplicate request"})
	}

	var req bulkRequest
	if err := decodeBody(c, &req); err != nil {
		release()
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if len(req.TaskIDs) == 0 {
		release()
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "no task ids"})
	}

	ctx := c.Request().Context()
	room := broadcast.WorkspaceRoom(ws)
	switch req.Action {
	case "update":
		if req.Update == nil {
			release()
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "missing update"})
		}
		tasks, applyErr := h.store.BulkApply(ctx, ws, req.TaskIDs, *req.Update)
		for i := range tasks {
			h.router.Emit(ctx, room, domain.Event{
				Name: domain.TaskUpdated, WorkspaceID: ws, UserID: userID, Task: &tasks[i],
			})
		}
		if applyErr != nil {
			h.logger.Errorf("bulk update partially failed, workspace: %s, err: %v", ws, applyErr)
		}
		return c.JSON(http.StatusOK, bulkResponse{Tasks: tasks, Failed: applyErr != nil})
	case "archive":
		archived := true
		tasks, applyErr := h.store.BulkApply(ctx, ws, req.TaskIDs, domain.TaskUpdate{IsArchived: &archived})
		ids := make([]string, 0, len(tasks))
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
		h.router.Emit(ctx, room, domain.Event{
			Name: domain.TaskBulkArchived, WorkspaceID: ws, UserID: userID, TaskIDs: ids,
		})
		if applyErr != nil {
			h.logger.Errorf("bulk archive partially failed, workspace: %s, err: %v", ws, applyErr)
		}
		return c.JSON(http.StatusOK, bulkResponse{Tasks: tasks, Failed: applyErr != nil})
	case "delete":
		deleted, deleteErr := h.store.BulkDelete(ctx, ws, req.TaskIDs)
		// Deletes that landed are broadcast even when the rest of the
		// batch failed, so other clients do not keep showing them.
		for _, id := range deleted {
			h.router.Emit(ctx, room, domain.Event{
				Name: domain.TaskDeleted, WorkspaceID: ws, UserID: userID, TaskID: id,
			})
		}
		if deleteErr != nil {
			h.logger.Errorf("bulk delete partially failed, workspace: %s, err: %v", ws, deleteErr)
		}
		return c.JSON(http.StatusOK, bulkResponse{Failed: deleteErr != nil})
	default:
		release()
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unknown bulk action"})
	}
}
