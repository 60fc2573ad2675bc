package model

import (
	"time"
)

type Kind uint8

const (
	KindAck Kind = iota
	KindNack
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	}
	return "unknown"
}

// Message is a received broker message as handed to consumers.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Token is one outstanding acknowledgement obligation. Only Attempt changes
// after creation, and it only grows.
type Token struct {
	ID           string
	Subscription string
	Kind         Kind
	EnqueuedAt   time.Time
	Attempt      int
}

type SealReason uint8

const (
	SealSize SealReason = iota
	SealDeadline
	SealShutdown
	SealRetry
)

func (r SealReason) String() string {
	switch r {
	case SealSize:
		return "size"
	case SealDeadline:
		return "deadline"
	case SealShutdown:
		return "shutdown"
	case SealRetry:
		return "retry"
	}
	return "unknown"
}

// Batch is a sealed set of ids of one subscription, submitted together.
// AckIDs and NackIDs never share an id.
type Batch struct {
	Subscription string
	AckIDs       []string
	NackIDs      []string
	CreatedAt    time.Time
	Deadline     time.Time
	Attempt      int
	Reason       SealReason
}

func (b *Batch) Len() int {
	return len(b.AckIDs) + len(b.NackIDs)
}

// IDs returns every id of the batch, acks first.
func (b *Batch) IDs() []string {
	ids := make([]string, 0, b.Len())
	ids = append(ids, b.AckIDs...)
	return append(ids, b.NackIDs...)
}

// Result is the answer of one transport call. Every submitted id is expected
// in exactly one of Succeeded or Failed.
type Result struct {
	Succeeded []string
	Failed    map[string]ErrorKind
}

// SucceededAll builds a result that marks every id as succeeded.
func SucceededAll(ids []string) Result {
	return Result{Succeeded: append([]string(nil), ids...)}
}

// FailedAll builds a result that marks every id as failed with kind.
func FailedAll(ids []string, kind ErrorKind) Result {
	res := Result{Failed: make(map[string]ErrorKind, len(ids))}
	for _, id := range ids {
		res.Failed[id] = kind
	}
	return res
}

// Fail records a failure for id, allocating Failed on first use.
func (r *Result) Fail(id string, kind ErrorKind) {
	if r.Failed == nil {
		r.Failed = make(map[string]ErrorKind)
	}
	r.Failed[id] = kind
}

type Status uint8

const (
	StatusCompleted Status = iota
	StatusPermanentlyFailed
	StatusShutdownIncomplete
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusPermanentlyFailed:
		return "permanently_failed"
	case StatusShutdownIncomplete:
		return "shutdown_incomplete"
	}
	return "unknown"
}

// Outcome is the terminal state of a token.
type Outcome struct {
	Token  Token
	Status Status
	Err    error
}
