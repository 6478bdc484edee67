package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/remote/types"
)

type fakeLister struct {
	remote.API

	mu    sync.Mutex
	lists map[types.ListType][]types.Task
	err   error
	calls []types.ListType
}

func (f *fakeLister) ListTasks(ctx context.Context, peerID string, category types.ListType, opts ...remote.ListOption) ([]types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, category)
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[category], nil
}

type recordingBroadcaster struct {
	msgTypes []string
	payloads []any
	err      error
}

func (b *recordingBroadcaster) Broadcast(msgType string, payload any) error {
	b.msgTypes = append(b.msgTypes, msgType)
	b.payloads = append(b.payloads, payload)
	return b.err
}

func TestService_Poll_FirstPollReportsAdded(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "2", Name: "b", Progress: 10}, {ID: "1", Name: "a", Progress: 50}},
	}}
	b := &recordingBroadcaster{}
	svc := NewService(api, b, Config{PeerID: "PID1"}, zerolog.Nop())

	require.NoError(t, svc.Poll(context.Background()))

	require.Len(t, b.msgTypes, 1)
	assert.Equal(t, EventTasksProgress, b.msgTypes[0])

	event, ok := b.payloads[0].(ProgressEvent)
	require.True(t, ok)
	assert.Equal(t, "PID1", event.PeerID)
	require.Len(t, event.Changes, 2)
	assert.Equal(t, ChangeAdded, event.Changes[0].Kind)
	assert.Equal(t, "1", event.Changes[0].TaskID)
	assert.Equal(t, "downloading", event.Changes[0].Category)
	assert.Len(t, event.Tasks, 2)
}

func TestService_Poll_Diff(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1", Progress: 10}, {ID: "2", Progress: 90}},
	}}
	b := &recordingBroadcaster{}
	svc := NewService(api, b, Config{
		PeerID:     "PID1",
		Categories: []types.ListType{types.ListDownloading, types.ListFinished},
	}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.Poll(ctx))

	api.lists = map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1", Progress: 40}, {ID: "3", Progress: 0}},
		types.ListFinished:    {{ID: "2", Progress: 10000, State: 11}},
	}
	require.NoError(t, svc.Poll(ctx))

	require.Len(t, b.payloads, 2)
	event := b.payloads[1].(ProgressEvent)
	require.Len(t, event.Changes, 3)

	assert.Equal(t, ChangeAdded, event.Changes[0].Kind)
	assert.Equal(t, "3", event.Changes[0].TaskID)

	assert.Equal(t, ChangeUpdated, event.Changes[1].Kind)
	assert.Equal(t, "1", event.Changes[1].TaskID)
	assert.Equal(t, 10, event.Changes[1].PrevProgress)
	assert.Equal(t, 40, event.Changes[1].Progress)

	assert.Equal(t, ChangeUpdated, event.Changes[2].Kind)
	assert.Equal(t, "2", event.Changes[2].TaskID)
	assert.Equal(t, "finished", event.Changes[2].Category)
}

func TestService_Poll_NoChangesNoBroadcast(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1", Progress: 10}},
	}}
	b := &recordingBroadcaster{}
	svc := NewService(api, b, Config{PeerID: "PID1"}, zerolog.Nop())

	require.NoError(t, svc.Poll(context.Background()))
	require.NoError(t, svc.Poll(context.Background()))

	assert.Len(t, b.msgTypes, 1)
}

func TestService_Poll_Removed(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1", Name: "gone"}},
	}}
	b := &recordingBroadcaster{}
	svc := NewService(api, b, Config{PeerID: "PID1"}, zerolog.Nop())

	require.NoError(t, svc.Poll(context.Background()))
	api.lists = nil
	require.NoError(t, svc.Poll(context.Background()))

	event := b.payloads[1].(ProgressEvent)
	require.Len(t, event.Changes, 1)
	assert.Equal(t, ChangeRemoved, event.Changes[0].Kind)
	assert.Equal(t, "gone", event.Changes[0].Name)
	assert.Empty(t, event.Tasks)
}

func TestService_Poll_ErrorKeepsSnapshot(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1"}},
	}}
	svc := NewService(api, nil, Config{PeerID: "PID1"}, zerolog.Nop())

	require.NoError(t, svc.Poll(context.Background()))

	api.err = &types.TransportError{Method: "GET", URL: "list", StatusCode: 502}
	err := svc.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsTransport(err))

	tasks, polledAt := svc.Snapshot()
	require.Len(t, tasks, 1)
	assert.Equal(t, "1", tasks[0].ID)
	assert.False(t, polledAt.IsZero())
}

type recordingReporter struct {
	reports []error
}

func (r *recordingReporter) ReportRemote(err error) {
	r.reports = append(r.reports, err)
}

func TestService_Poll_ReportsRemoteStatus(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{}}
	svc := NewService(api, nil, Config{PeerID: "PID1"}, zerolog.Nop())
	r := &recordingReporter{}
	svc.SetStatusReporter(r)

	require.NoError(t, svc.Poll(context.Background()))
	api.err = errors.New("connection refused")
	require.Error(t, svc.Poll(context.Background()))

	require.Len(t, r.reports, 2)
	assert.NoError(t, r.reports[0])
	assert.Error(t, r.reports[1])
}

func TestService_Poll_BroadcastFailureIsNotFatal(t *testing.T) {
	api := &fakeLister{lists: map[types.ListType][]types.Task{
		types.ListDownloading: {{ID: "1"}},
	}}
	b := &recordingBroadcaster{err: errors.New("backlog")}
	svc := NewService(api, b, Config{PeerID: "PID1"}, zerolog.Nop())

	assert.NoError(t, svc.Poll(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrNoPeer)
	assert.Error(t, Config{PeerID: "p", Categories: []types.ListType{7}}.Validate())
	assert.NoError(t, Config{PeerID: "p", Categories: []types.ListType{types.ListFailed}}.Validate())
}
