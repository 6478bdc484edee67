package remote

import (
	"context"
	"sync"

	"github.com/slipstream/homecloud/internal/remote/types"
)

// API is the set of remote operations consumed by the CLI, the HTTP server and
// the task watcher.
type API interface {
	ListPeers(ctx context.Context) ([]types.Peer, error)
	ListTasks(ctx context.Context, peerID string, category types.ListType, opts ...ListOption) ([]types.Task, error)
	CheckURLs(ctx context.Context, peerID string, urls []string) ([]types.TaskDescriptor, error)
	SubmitTasks(ctx context.Context, peerID, path string, descriptors []types.TaskDescriptor) (*types.SubmitResult, error)
}

var _ API = (*Locked)(nil)

// Locked serializes every call to the wrapped API. The session underneath is
// shared mutable state, so concurrent callers go through one of these.
type Locked struct {
	mu  sync.Mutex
	api API
}

// NewLocked wraps api so only one request is in flight at a time.
func NewLocked(api API) *Locked {
	return &Locked{api: api}
}

func (l *Locked) ListPeers(ctx context.Context) ([]types.Peer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api.ListPeers(ctx)
}

func (l *Locked) ListTasks(ctx context.Context, peerID string, category types.ListType, opts ...ListOption) ([]types.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api.ListTasks(ctx, peerID, category, opts...)
}

func (l *Locked) CheckURLs(ctx context.Context, peerID string, urls []string) ([]types.TaskDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api.CheckURLs(ctx, peerID, urls)
}

func (l *Locked) SubmitTasks(ctx context.Context, peerID, path string, descriptors []types.TaskDescriptor) (*types.SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api.SubmitTasks(ctx, peerID, path, descriptors)
}

// AddURLs validates urls on the peer and submits whatever was accepted. The
// accepted descriptors are returned alongside the submission result.
func AddURLs(ctx context.Context, api API, peerID, path string, urls []string) ([]types.TaskDescriptor, *types.SubmitResult, error) {
	descriptors, err := api.CheckURLs(ctx, peerID, urls)
	if err != nil {
		return descriptors, nil, err
	}

	result, err := api.SubmitTasks(ctx, peerID, path, descriptors)
	if err != nil {
		return descriptors, nil, err
	}

	return descriptors, result, nil
}
