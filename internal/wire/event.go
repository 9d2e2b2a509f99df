package wire

import "time"

// Event is one decoded execution-event record. Worker is the emitting source
// peer; TS is the peer's elapsed logical timestamp for the event.
type Event struct {
	Worker  int
	TS      time.Duration
	Payload Payload
}

// Payload is implemented by the event payload kinds.
type Payload interface {
	payloadTag() byte
}

// OperatorCreate announces an operator or scope at Addr.
type OperatorCreate struct {
	Addr Addr
	ID   uint64
	Name string
}

// ChannelCreate announces a channel between two operator addresses. Either
// endpoint may not have been announced yet; edges reference addresses, not
// node handles.
type ChannelCreate struct {
	Source Addr
	Target Addr
}

// ScheduleStart opens a scheduling interval for the operator at Addr. The
// interval's wall time is the event record's timestamp.
type ScheduleStart struct {
	Addr Addr
}

// ScheduleStop closes the open scheduling interval for the operator at Addr.
type ScheduleStop struct {
	Addr Addr
}

// ArrangementDelta is a signed tuple-count change for the arrangement owned
// by the operator at Addr. Batch application and compaction are both
// expressed as deltas.
type ArrangementDelta struct {
	Addr  Addr
	Delta int64
}

const (
	tagOperatorCreate   byte = 0x01
	tagChannelCreate    byte = 0x02
	tagScheduleStart    byte = 0x03
	tagScheduleStop     byte = 0x04
	tagArrangementDelta byte = 0x05
)

func (OperatorCreate) payloadTag() byte   { return tagOperatorCreate }
func (ChannelCreate) payloadTag() byte    { return tagChannelCreate }
func (ScheduleStart) payloadTag() byte    { return tagScheduleStart }
func (ScheduleStop) payloadTag() byte     { return tagScheduleStop }
func (ArrangementDelta) payloadTag() byte { return tagArrangementDelta }
