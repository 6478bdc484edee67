package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/homecloud/internal/remote/types"
	"github.com/slipstream/homecloud/internal/testutil"
)

func TestService_Record(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	descriptors := []types.TaskDescriptor{
		{URL: "ed2k://a", Name: "a.mkv", FileSize: 10},
		{URL: "ed2k://b", Name: "b.mkv", FileSize: 20},
	}
	result := &types.SubmitResult{
		Rtn: 0,
		Tasks: []types.SubmittedTask{
			{ID: 2, URL: "ed2k://b", Result: 202, TaskID: "48", Msg: "repeate_taskid:48"},
			{ID: 1, URL: "ed2k://a", Result: 0, TaskID: "49"},
		},
	}

	batchID, err := service.Record(ctx, "PID1", "C:/TDDOWNLOAD/", descriptors, result)
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)

	list, err := service.List(ctx, ListOptions{BatchID: batchID})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, int64(2), list.Total)

	byURL := map[string]*Entry{}
	for _, e := range list.Items {
		byURL[e.URL] = e
	}

	b := byURL["ed2k://b"]
	require.NotNil(t, b)
	require.NotNil(t, b.Result)
	assert.Equal(t, 202, *b.Result)
	assert.Equal(t, "48", b.TaskID)
	assert.Equal(t, "repeate_taskid:48", b.Msg)
	assert.Equal(t, "PID1", b.PeerID)
	assert.Equal(t, int64(20), b.FileSize)

	a := byURL["ed2k://a"]
	require.NotNil(t, a)
	require.NotNil(t, a.Result)
	assert.Equal(t, 0, *a.Result)
	assert.Equal(t, "49", a.TaskID)
	assert.Empty(t, a.Msg)
}

func TestService_Record_Empty(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)

	batchID, err := service.Record(context.Background(), "PID1", "", nil, &types.SubmitResult{})
	require.NoError(t, err)
	assert.Empty(t, batchID)

	list, err := service.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Zero(t, list.Total)
}

func TestService_Record_NoPerTaskResults(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	_, err := service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "u"}}, &types.SubmitResult{Rtn: 1004})
	require.NoError(t, err)

	list, err := service.List(ctx, ListOptions{PeerID: "PID1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Nil(t, list.Items[0].Result)
	assert.Equal(t, 1004, list.Items[0].Rtn)
}

func TestMatchOutcomes_FallsBackToPosition(t *testing.T) {
	descriptors := []types.TaskDescriptor{{URL: "orig-a"}, {URL: "orig-b"}}
	result := &types.SubmitResult{Tasks: []types.SubmittedTask{
		{URL: "rewritten-a", TaskID: "1"},
		{URL: "rewritten-b", TaskID: "2"},
	}}

	outcomes := matchOutcomes(descriptors, result)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "1", outcomes[0].TaskID)
	assert.Equal(t, "2", outcomes[1].TaskID)
}

func TestService_ListFiltersAndOrder(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	service.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	_, err := service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "first"}}, nil)
	require.NoError(t, err)
	_, err = service.Record(ctx, "PID2", "/p", []types.TaskDescriptor{{URL: "other-peer"}}, nil)
	require.NoError(t, err)
	_, err = service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "second"}}, nil)
	require.NoError(t, err)

	list, err := service.List(ctx, ListOptions{PeerID: "PID1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "second", list.Items[0].URL)
	assert.Equal(t, "first", list.Items[1].URL)
	assert.Equal(t, base.Add(3*time.Minute), list.Items[0].CreatedAt)

	limited, err := service.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Items, 1)
	assert.Equal(t, int64(3), limited.Total)
}

func TestService_DeleteOlderThan(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return old }
	_, err := service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "old"}}, nil)
	require.NoError(t, err)

	service.now = func() time.Time { return old.AddDate(1, 0, 0) }
	_, err = service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "new"}}, nil)
	require.NoError(t, err)

	deleted, err := service.DeleteOlderThan(ctx, old.AddDate(0, 6, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	list, err := service.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "new", list.Items[0].URL)
}

func TestHandlers_List(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)

	_, err := service.Record(context.Background(), "PID1", "/p", []types.TaskDescriptor{{URL: "u", Name: "n"}}, nil)
	require.NoError(t, err)

	e := echo.New()
	NewHandlers(service).RegisterRoutes(e.Group("/api/v1/history"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?pid=PID1&limit=5", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "u", resp.Items[0].URL)
}

func TestService_Cleanup(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now.AddDate(0, 0, -100) }
	_, err := service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "stale"}}, nil)
	require.NoError(t, err)

	service.now = func() time.Time { return now }
	_, err = service.Record(ctx, "PID1", "/p", []types.TaskDescriptor{{URL: "fresh"}}, nil)
	require.NoError(t, err)

	deleted, err := service.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = service.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
