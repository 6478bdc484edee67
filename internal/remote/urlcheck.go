package remote

import (
	"context"
	"strconv"

	"github.com/slipstream/homecloud/internal/remote/types"
)

// CheckURLs validates each URL against the peer, one request at a time and in
// input order. URLs the server rejects are logged and skipped; the rest come back
// as server-normalized descriptors. Transport and protocol errors stop the loop,
// and the descriptors accepted so far are returned with the error.
func (c *Client) CheckURLs(ctx context.Context, peerID string, urls []string) ([]types.TaskDescriptor, error) {
	descriptors := make([]types.TaskDescriptor, 0, len(urls))

	for _, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			return descriptors, err
		}

		params := baseParams(types.ChannelTypeDefault)
		params.Set("pid", peerID)
		params.Set("url", rawURL)
		params.Set("type", strconv.Itoa(types.URLCheckType))

		env, err := c.get(ctx, "urlCheck", params)
		if err != nil {
			return descriptors, err
		}

		if !env.OK() {
			event := c.logger.Warn().
				Str("pid", peerID).
				Str("url", rawURL).
				Int("rtn", env.Rtn)
			var info types.TaskInfo
			if env.Field("taskInfo", &info) == nil {
				event = event.Int("failCode", info.FailCode)
			}
			event.Msg("url check failed, skipping")
			continue
		}

		var info types.TaskInfo
		if err := env.Field("taskInfo", &info); err != nil {
			return descriptors, withURL(err, c.baseURL+"urlCheck")
		}

		descriptors = append(descriptors, info.Descriptor())
	}

	return descriptors, nil
}
