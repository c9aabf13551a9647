package eios

import (
	"context"
	"time"

	"github.com/gigisung0503/eios/internal/domain"
)

// FetchCandidates merges the pinned-items stream and each board's
// matching-items stream into one deduplicated candidate set for the
// window. The pin flag derives from membership in the pinned stream, never
// from a self-reported field on the item. Ordering is unspecified.
func (c *Client) FetchCandidates(ctx context.Context, boardIDs []string, since time.Time) ([]domain.Candidate, error) {
	pinned, err := c.PinnedItems(ctx, boardIDs, since)
	if err != nil {
		return nil, err
	}

	pinnedIDs := make(map[string]struct{}, len(pinned))
	for _, item := range pinned {
		pinnedIDs[item.ExternalID] = struct{}{}
	}
	c.logger.Info("fetched pinned items", "count", len(pinnedIDs), "since", isoZ(since))

	// First board to return an id wins; the same item matching several
	// boards is never re-added.
	var candidates []domain.Candidate
	seen := map[string]struct{}{}

	for _, boardID := range boardIDs {
		items, err := c.BoardItems(ctx, boardID, since)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if _, ok := seen[item.ExternalID]; ok {
				continue
			}
			seen[item.ExternalID] = struct{}{}
			_, item.Pinned = pinnedIDs[item.ExternalID]
			candidates = append(candidates, item)
		}
	}

	c.logger.Info("reconciled candidates", "total", len(candidates), "pinned", len(pinnedIDs))
	return candidates, nil
}
