package msglog

import (
	"encoding/json"
	"fmt"

	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

var (
	maxPageLimit     = 200
	defaultPageLimit = 50
)

// SetPageLimits configures the page size cap and default.
func SetPageLimits(max, def int) {
	if max > 0 {
		maxPageLimit = max
	}
	if def > 0 && def <= maxPageLimit {
		defaultPageLimit = def
	}
}

// Page reads up to limit messages with order key strictly below before,
// returned oldest-first. before <= 0 means "from the newest". A single
// bounded iterator serves the whole read, so the page is a consistent
// point-in-time view: no later append can interleave into it.
func Page(actor, group string, before int64, limit int) ([]models.Message, error) {
	if err := membership.Authorize(actor, group, models.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	prefix := []byte(store.MsgPrefix(group))
	upper := store.PrefixUpperBound(prefix)
	if before > 0 {
		k, err := store.MsgKey(group, before)
		if err != nil {
			return nil, err
		}
		upper = []byte(k)
	}
	iter, err := store.NewIter(prefix, upper)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	// Walk newest-to-oldest, then flip.
	out := make([]models.Message, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("corrupt log entry %q: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
