package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"boardsync/broadcast"
)

// stream serves the workspace's live event feed over SSE. The
// connection joins the workspace room and relays every event until the
// client goes away. EventSource cannot set headers, so a token query
// parameter is accepted as a fallback.
func (h *handlers) stream(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	if _, err := h.auth.UserIDFromAuthHeader(authHeader); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": err.Error()})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "stream unsupported"})
	}
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.router.Subscribe(64)
	defer sub.Close()
	sub.Join(broadcast.WorkspaceRoom(c.Param("ws")))

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.Events():
			data, err := sonic.Marshal(ev)
			if err != nil {
				c.Logger().Error(err)
				continue
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
