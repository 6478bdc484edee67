package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/slipstream/homecloud/internal/remote/types"
)

type listOptions struct {
	offset int
	limit  int
}

// ListOption adjusts the page requested by ListTasks.
type ListOption func(*listOptions)

// WithOffset sets the position of the first task returned. Defaults to 0.
func WithOffset(offset int) ListOption {
	return func(o *listOptions) {
		o.offset = offset
	}
}

// WithLimit sets the page size. Defaults to 10.
func WithLimit(limit int) ListOption {
	return func(o *listOptions) {
		o.limit = limit
	}
}

// ListTasks returns one page of the peer's tasks in the given category.
// Paging is left to the caller.
func (c *Client) ListTasks(ctx context.Context, peerID string, category types.ListType, opts ...ListOption) ([]types.Task, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid task category %d", int(category))
	}

	o := listOptions{offset: 0, limit: types.DefaultListLimit}
	for _, opt := range opts {
		opt(&o)
	}

	params := baseParams(types.ChannelTypeDefault)
	params.Set("pid", peerID)
	params.Set("type", strconv.Itoa(int(category)))
	params.Set("pos", strconv.Itoa(o.offset))
	params.Set("number", strconv.Itoa(o.limit))
	params.Set("needUrl", "1")

	env, err := c.get(ctx, "list", params)
	if err != nil {
		return nil, err
	}

	var tasks []types.Task
	if err := env.Field("tasks", &tasks); err != nil {
		return nil, withURL(err, c.baseURL+"list")
	}

	return tasks, nil
}
