package remote

import (
	"context"
	"strconv"

	"github.com/slipstream/homecloud/internal/remote/types"
)

// ListPeers returns the devices registered to the account, exactly as the server
// reports them.
func (c *Client) ListPeers(ctx context.Context) ([]types.Peer, error) {
	params := baseParams(types.ChannelTypePeerList)
	params.Set("type", strconv.Itoa(types.PeerListType))

	env, err := c.get(ctx, "listPeer", params)
	if err != nil {
		return nil, err
	}

	var peers []types.Peer
	if err := env.Field("peerList", &peers); err != nil {
		return nil, withURL(err, c.baseURL+"listPeer")
	}

	return peers, nil
}
