package kafka

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Ack ids have the form "partition:leader_epoch:offset".

func encodeAckID(r *kgo.Record) string {
	return fmt.Sprintf("%d:%d:%d", r.Partition, r.LeaderEpoch, r.Offset)
}

func parseAckID(id string) (int32, kgo.EpochOffset, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return 0, kgo.EpochOffset{}, fmt.Errorf("malformed ack id %q", id)
	}

	partition, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, kgo.EpochOffset{}, fmt.Errorf("parse partition of %q: %w", id, err)
	}
	epoch, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, kgo.EpochOffset{}, fmt.Errorf("parse epoch of %q: %w", id, err)
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, kgo.EpochOffset{}, fmt.Errorf("parse offset of %q: %w", id, err)
	}
	if partition < 0 || offset < 0 {
		return 0, kgo.EpochOffset{}, fmt.Errorf("negative partition or offset in %q", id)
	}

	return int32(partition), kgo.EpochOffset{Epoch: int32(epoch), Offset: offset}, nil
}
