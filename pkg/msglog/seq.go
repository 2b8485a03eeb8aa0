package msglog

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"chatsync/pkg/store"
)

// sequencer hands out the per-group order key. The mutex is held across
// allocation and the durable batch apply so a crash can never leave a
// gap that a later append reuses.
type sequencer struct {
	mu   sync.Mutex
	last int64
	init bool
}

var (
	seqMu sync.Mutex
	seqs  = map[string]*sequencer{}
)

func groupSeq(gid string) *sequencer {
	seqMu.Lock()
	defer seqMu.Unlock()
	s, ok := seqs[gid]
	if !ok {
		s = &sequencer{}
		seqs[gid] = s
	}
	return s
}

// tail recovers the highest committed order key for the group by
// stepping the log iterator to its last entry. Called once per group
// per process, under the group mutex.
func (s *sequencer) tail(gid string) error {
	if s.init {
		return nil
	}
	prefix := []byte(store.MsgPrefix(gid))
	iter, err := store.NewIter(prefix, store.PrefixUpperBound(prefix))
	if err != nil {
		return err
	}
	defer iter.Close()
	if iter.Last() && iter.Valid() {
		key := string(iter.Key())
		raw := key[strings.LastIndex(key, ":")+1:]
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return fmt.Errorf("corrupt log key %q: %w", key, perr)
		}
		s.last = n
	}
	s.init = true
	return nil
}

// next returns the order key an append in progress should commit under.
// Callers must hold s.mu and must call committed only after the batch
// is durable.
func (s *sequencer) next(gid string) (int64, error) {
	if err := s.tail(gid); err != nil {
		return 0, err
	}
	return s.last + 1, nil
}

func (s *sequencer) committed(seq int64) { s.last = seq }

// resetSequencers drops all cached tails. Test hook: a fresh store
// in the same process must re-recover from disk.
func resetSequencers() {
	seqMu.Lock()
	defer seqMu.Unlock()
	seqs = map[string]*sequencer{}
}
