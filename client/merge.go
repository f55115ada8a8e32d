package client

import (
	"sort"
	"time"

	"github.com/profitwave/support-chat-api/models"
)

// confirmWindow is how far apart in time a provisional message and its store
// copy may be and still count as the same message. Matching is by author,
// body and this window only, so two identical bodies sent within the window
// can collapse into one entry. Known limitation; the store does not echo
// client ids back, so there is nothing stronger to match on.
const confirmWindow = 5 * time.Second

// Merge reconciles the local conversation view with the authoritative store
// snapshot. It is pure and idempotent: merging the same snapshot twice yields
// the same result, and no call mutates its inputs.
//
// Local provisional messages that the store now holds are dropped in favor of
// the store copy. The synthesized welcome greeting survives only while the
// store is empty. Everything else is a union keyed by message id, ordered by
// timestamp.
func Merge(local []Message, store []models.ChatMessage) []Message {
	remote := make([]Message, 0, len(store))
	seen := make(map[string]bool, len(store))
	for _, m := range store {
		rm := fromStore(m)
		remote = append(remote, rm)
		seen[rm.ID] = true
	}

	merged := make([]Message, 0, len(local)+len(remote))
	for _, lm := range local {
		if lm.ID == welcomeMessageID {
			if len(remote) > 0 {
				continue
			}
			merged = append(merged, lm)
			continue
		}
		if seen[lm.ID] {
			// already have the store copy
			continue
		}
		if lm.IsProvisional() && hasStoreCopy(lm, remote) {
			continue
		}
		merged = append(merged, lm)
	}
	merged = append(merged, remote...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// hasStoreCopy reports whether a provisional local message has been persisted
// under a real id
func hasStoreCopy(lm Message, remote []Message) bool {
	for _, rm := range remote {
		if rm.Type != lm.Type || rm.Body != lm.Body {
			continue
		}
		delta := rm.Timestamp.Sub(lm.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta < confirmWindow {
			return true
		}
	}
	return false
}
