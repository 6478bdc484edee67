package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slipstream/homecloud/internal/remote/types"
)

type createTaskBody struct {
	Path  string                 `json:"path"`
	Tasks []types.TaskDescriptor `json:"tasks"`
}

// SubmitTasks creates download tasks on the peer. An empty descriptor list returns
// an empty result without touching the network. Per-task outcomes (including
// duplicates) are returned as reported and not interpreted here.
func (c *Client) SubmitTasks(ctx context.Context, peerID, path string, descriptors []types.TaskDescriptor) (*types.SubmitResult, error) {
	if len(descriptors) == 0 {
		return &types.SubmitResult{}, nil
	}
	if path == "" {
		path = c.defaultPath
	}

	payload, err := encodeCreateTask(path, descriptors)
	if err != nil {
		return nil, err
	}

	params := baseParams(types.ChannelTypeDefault)
	params.Set("pid", peerID)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	env, err := c.post(ctx, "createTask", params, payload, header)
	if err != nil {
		return nil, err
	}

	result := &types.SubmitResult{Rtn: env.Rtn, Envelope: env}
	if env.Has("tasks") {
		if err := env.Field("tasks", &result.Tasks); err != nil {
			return nil, withURL(err, c.baseURL+"createTask")
		}
	}

	c.logger.Info().
		Str("pid", peerID).
		Str("path", path).
		Int("submitted", len(descriptors)).
		Int("rtn", env.Rtn).
		Msg("submitted tasks")

	return result, nil
}

// encodeCreateTask produces the createTask form body: the JSON document
// percent-encoded as a whole and sent as the value of a single "json" key.
func encodeCreateTask(path string, descriptors []types.TaskDescriptor) (string, error) {
	data, err := marshalJSON(createTaskBody{Path: path, Tasks: descriptors})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task list: %w", err)
	}
	return "json=" + quote(string(data)), nil
}

// quote percent-encodes every byte except ASCII letters, digits, "_.-~" and "/".
func quote(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0F])
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	case ch == '_', ch == '.', ch == '-', ch == '~', ch == '/':
		return true
	}
	return false
}
