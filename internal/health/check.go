package health

import (
	"context"

	"github.com/slipstream/homecloud/internal/remote/types"
)

// PeerLister is the part of the remote API a health check needs.
type PeerLister interface {
	ListPeers(ctx context.Context) ([]types.Peer, error)
}

// Check lists the account's peers and updates the remote and peer items.
// Peers that disappeared from the listing are dropped; offline peers get a
// warning.
func (s *Service) Check(ctx context.Context, lister PeerLister) error {
	peers, err := lister.ListPeers(ctx)
	s.ReportRemote(err)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(peers))
	for i := range peers {
		p := &peers[i]
		seen[p.PID] = true

		name := p.Name
		if name == "" {
			name = p.PID
		}
		s.RegisterItem(CategoryPeers, p.PID, name)
		if p.IsOnline() {
			s.ClearStatus(CategoryPeers, p.PID)
		} else {
			s.SetWarning(CategoryPeers, p.PID, "peer is offline")
		}
	}

	for _, item := range s.GetByCategory(CategoryPeers) {
		if !seen[item.ID] {
			s.UnregisterItem(CategoryPeers, item.ID)
		}
	}
	return nil
}
