package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/remote/types"
)

// CheckRequest is the body of POST /api/v1/peers/:pid/check.
type CheckRequest struct {
	URLs []string `json:"urls"`
}

// CheckResponse lists the URLs the peer accepted, as submission descriptors.
type CheckResponse struct {
	Tasks []types.TaskDescriptor `json:"tasks"`
}

// SubmitRequest is the body of POST /api/v1/peers/:pid/tasks. URLs are
// validated first; Tasks are descriptors from an earlier check and are
// submitted as-is. Both may be given.
type SubmitRequest struct {
	Path  string                 `json:"path"`
	URLs  []string               `json:"urls"`
	Tasks []types.TaskDescriptor `json:"tasks"`
}

// SubmitResponse reports what was sent and what the peer answered.
type SubmitResponse struct {
	BatchID   string                 `json:"batchId,omitempty"`
	Path      string                 `json:"path"`
	Submitted []types.TaskDescriptor `json:"submitted"`
	Rtn       int                    `json:"rtn"`
	Results   []types.SubmittedTask  `json:"results"`
}

// ProgressResponse is the watcher's last snapshot.
type ProgressResponse struct {
	PolledAt *time.Time  `json:"polledAt,omitempty"`
	Tasks    []types.Task `json:"tasks"`
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"startTime":      s.startTime.Format(time.RFC3339),
		"remoteBaseUrl":  s.cfg.Remote.BaseURL,
		"defaultPath":    s.cfg.Remote.DefaultPath,
		"watcherEnabled": s.progress != nil,
		"requiresAuth":   s.auth != nil,
	})
}

// listPeers returns the account's peers exactly as the server sent them.
// GET /api/v1/peers
func (s *Server) listPeers(c echo.Context) error {
	peers, err := s.remote.ListPeers(c.Request().Context())
	if err != nil {
		return s.remoteError(err)
	}
	if peers == nil {
		peers = []types.Peer{}
	}
	return c.JSON(http.StatusOK, peers)
}

// listTasks returns one page of a peer's tasks.
// GET /api/v1/peers/:pid/tasks?category=&pos=&number=
func (s *Server) listTasks(c echo.Context) error {
	category := types.ListDownloading
	if v := c.QueryParam("category"); v != "" {
		parsed, err := types.ParseListType(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		category = parsed
	}

	pos, err := queryInt(c, "pos", 0)
	if err != nil {
		return err
	}
	number, err := queryInt(c, "number", types.DefaultListLimit)
	if err != nil {
		return err
	}

	tasks, err := s.remote.ListTasks(c.Request().Context(), c.Param("pid"), category,
		remote.WithOffset(pos), remote.WithLimit(number))
	if err != nil {
		return s.remoteError(err)
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

// checkURLs validates URLs on a peer without submitting them.
// POST /api/v1/peers/:pid/check
func (s *Server) checkURLs(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	urls := cleanURLs(req.URLs)
	if len(urls) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one url is required")
	}

	descriptors, err := s.remote.CheckURLs(c.Request().Context(), c.Param("pid"), urls)
	if err != nil {
		return s.remoteError(err)
	}
	return c.JSON(http.StatusOK, CheckResponse{Tasks: descriptors})
}

// submitTasks validates any URLs, submits everything accepted and records the
// batch in history.
// POST /api/v1/peers/:pid/tasks
func (s *Server) submitTasks(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	urls := cleanURLs(req.URLs)
	if len(urls) == 0 && len(req.Tasks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "urls or tasks are required")
	}
	for _, t := range req.Tasks {
		if t.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "every task needs a url")
		}
	}

	ctx := c.Request().Context()
	pid := c.Param("pid")

	descriptors := append([]types.TaskDescriptor{}, req.Tasks...)
	if len(urls) > 0 {
		checked, err := s.remote.CheckURLs(ctx, pid, urls)
		if err != nil {
			return s.remoteError(err)
		}
		descriptors = append(descriptors, checked...)
	}

	path := req.Path
	if path == "" {
		path = s.cfg.Remote.DefaultPath
	}

	result, err := s.remote.SubmitTasks(ctx, pid, path, descriptors)
	if err != nil {
		return s.remoteError(err)
	}

	resp := SubmitResponse{
		Path:      path,
		Submitted: descriptors,
		Rtn:       result.Rtn,
		Results:   result.Tasks,
	}
	if resp.Results == nil {
		resp.Results = []types.SubmittedTask{}
	}

	if !result.Empty() {
		// The submission already happened; a history failure must not hide it.
		batchID, err := s.history.Record(ctx, pid, path, descriptors, result)
		if err != nil {
			s.logger.Error().Err(err).Str("pid", pid).Msg("failed to record submission history")
		}
		resp.BatchID = batchID
	}

	return c.JSON(http.StatusOK, resp)
}

// getProgress returns the watcher's last snapshot.
// GET /api/v1/progress
func (s *Server) getProgress(c echo.Context) error {
	tasks, polledAt := s.progress.Snapshot()
	resp := ProgressResponse{Tasks: tasks}
	if !polledAt.IsZero() {
		resp.PolledAt = &polledAt
	}
	if resp.Tasks == nil {
		resp.Tasks = []types.Task{}
	}
	return c.JSON(http.StatusOK, resp)
}

// remoteError maps a remote client error onto an HTTP error.
func (s *Server) remoteError(err error) error {
	// Transport errors wrap the context error, so the deadline check comes first.
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error()).SetInternal(err)
	case types.IsTransport(err), types.IsProtocol(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	case errors.Is(err, types.ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "remote session is not authenticated").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
