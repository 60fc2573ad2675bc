package kafka

import (
	"cmp"
	"slices"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

type delivered struct {
	offset int64
	epoch  int32
	acked  bool
}

type partitionOffsets struct {
	// pending holds delivered records not covered by a commit, by ascending
	// offset.
	pending   []delivered
	committed int64
}

type ackState uint8

const (
	ackRecorded ackState = iota
	ackCommitted
	ackUnknown
)

// offsetTracker commits only the contiguous acked prefix of each partition,
// so a record that was not acked is never skipped and the committed offset
// never moves backwards.
type offsetTracker struct {
	partitions map[int32]*partitionOffsets
	mu         sync.Mutex
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int32]*partitionOffsets)}
}

func (t *offsetTracker) deliver(partition int32, eo kgo.EpochOffset) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.partitions[partition]
	if !ok {
		s = &partitionOffsets{}
		t.partitions[partition] = s
	}
	if eo.Offset < s.committed {
		return
	}

	i, found := slices.BinarySearchFunc(s.pending, eo.Offset, func(d delivered, o int64) int {
		return cmp.Compare(d.offset, o)
	})
	if found {
		return
	}
	s.pending = slices.Insert(s.pending, i, delivered{offset: eo.Offset, epoch: eo.Epoch})
}

func (t *offsetTracker) ack(partition int32, offset int64) ackState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.partitions[partition]
	if !ok {
		return ackUnknown
	}
	if offset < s.committed {
		return ackCommitted
	}

	i, found := slices.BinarySearchFunc(s.pending, offset, func(d delivered, o int64) int {
		return cmp.Compare(d.offset, o)
	})
	if !found {
		return ackUnknown
	}
	s.pending[i].acked = true

	return ackRecorded
}

// committable returns, for the given partitions, the offset after the
// longest acked prefix when it is ahead of the committed offset.
func (t *offsetTracker) committable(partitions []int32) map[int32]kgo.EpochOffset {
	t.mu.Lock()
	defer t.mu.Unlock()

	offsets := make(map[int32]kgo.EpochOffset)
	for _, p := range partitions {
		s, ok := t.partitions[p]
		if !ok {
			continue
		}

		n := 0
		for n < len(s.pending) && s.pending[n].acked {
			n++
		}
		if n == 0 {
			continue
		}

		last := s.pending[n-1]
		offsets[p] = kgo.EpochOffset{Epoch: last.epoch, Offset: last.offset + 1}
	}

	return offsets
}

// commit records an offset the broker accepted. Lower offsets are ignored.
func (t *offsetTracker) commit(partition int32, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.partitions[partition]
	if !ok || offset <= s.committed {
		return
	}

	s.committed = offset
	i, _ := slices.BinarySearchFunc(s.pending, offset, func(d delivered, o int64) int {
		return cmp.Compare(d.offset, o)
	})
	s.pending = slices.Delete(s.pending, 0, i)
}

func (t *offsetTracker) committedOffset(partition int32) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.partitions[partition]; ok {
		return s.committed
	}
	return 0
}

// revoke forgets partitions this member no longer owns. Their records are
// redelivered to the new owner from the group's committed offset.
func (t *offsetTracker) revoke(partitions []int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range partitions {
		delete(t.partitions, p)
	}
}
