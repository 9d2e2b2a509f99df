package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// DefaultMaxBody is the default upper bound on a frame body.
const DefaultMaxBody = 1 << 20

// frame trailer: crc32c over the body
const crcLen = 4

// DecodeError reports a malformed frame. It is fatal to the affected
// connection; the reader does not attempt resynchronization.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("wire: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrf(err error, format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// Batch is one decoded frame: events sharing a single worker id.
type Batch struct {
	Worker int
	Events []Event
}

// Writer encodes event batches onto a byte stream. It is used by tests and
// by source-side emitters feeding the engine.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteBatch writes one frame holding the given events for worker. Event
// Worker fields are ignored; the frame-level id is authoritative.
func (w *Writer) WriteBatch(worker int, events []Event) error {
	if worker < 0 {
		return fmt.Errorf("wire: negative worker id %d", worker)
	}
	body := w.buf[:0]
	body = binary.AppendUvarint(body, uint64(worker))
	body = binary.AppendUvarint(body, uint64(len(events)))
	for i := range events {
		var err error
		body, err = appendEvent(body, &events[i])
		if err != nil {
			return err
		}
	}
	w.buf = body

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(body)+crcLen))
	if _, err := w.w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(body); err != nil {
		return err
	}
	var trailer [crcLen]byte
	binary.BigEndian.PutUint32(trailer[:], crc32.Checksum(body, castagnoli))
	_, err := w.w.Write(trailer[:])
	return err
}

func appendEvent(b []byte, ev *Event) ([]byte, error) {
	if ev.Payload == nil {
		return nil, fmt.Errorf("wire: event without payload")
	}
	b = append(b, ev.Payload.payloadTag())
	b = binary.AppendUvarint(b, uint64(ev.TS))
	switch p := ev.Payload.(type) {
	case OperatorCreate:
		b = appendAddr(b, p.Addr)
		b = binary.AppendUvarint(b, p.ID)
		b = binary.AppendUvarint(b, uint64(len(p.Name)))
		b = append(b, p.Name...)
	case ChannelCreate:
		b = appendAddr(b, p.Source)
		b = appendAddr(b, p.Target)
	case ScheduleStart:
		b = appendAddr(b, p.Addr)
	case ScheduleStop:
		b = appendAddr(b, p.Addr)
	case ArrangementDelta:
		b = appendAddr(b, p.Addr)
		b = binary.AppendUvarint(b, zigzag(p.Delta))
	default:
		return nil, fmt.Errorf("wire: unsupported payload %T", ev.Payload)
	}
	return b, nil
}

func appendAddr(b []byte, a Addr) []byte {
	b = binary.AppendUvarint(b, uint64(len(a)))
	for _, e := range a {
		b = binary.AppendUvarint(b, uint64(e))
	}
	return b
}

func zigzag(v int64) uint64   { return uint64((v << 1) ^ (v >> 63)) }
func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

// Reader decodes one connection's byte stream into a lazy sequence of event
// batches. End-of-stream at a frame boundary yields io.EOF; anything
// malformed yields a DecodeError and the connection must be considered
// closed.
type Reader struct {
	r       *bufio.Reader
	maxBody int
}

// NewReader returns a Reader over r. maxBody <= 0 selects DefaultMaxBody.
func NewReader(r io.Reader, maxBody int) *Reader {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Reader{r: bufio.NewReader(r), maxBody: maxBody}
}

// Next decodes and returns the next frame.
func (r *Reader) Next() (Batch, error) {
	var head [4]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		if err == io.EOF {
			return Batch{}, io.EOF
		}
		return Batch{}, decodeErrf(err, "truncated frame header")
	}
	frameLen := int(binary.BigEndian.Uint32(head[:]))
	if frameLen < crcLen+2 {
		return Batch{}, decodeErrf(nil, "frame length %d too small", frameLen)
	}
	if frameLen-crcLen > r.maxBody {
		return Batch{}, decodeErrf(nil, "frame body %d exceeds limit %d", frameLen-crcLen, r.maxBody)
	}
	buf := make([]byte, frameLen)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Batch{}, decodeErrf(err, "truncated frame body")
	}
	body := buf[:frameLen-crcLen]
	want := binary.BigEndian.Uint32(buf[frameLen-crcLen:])
	if got := crc32.Checksum(body, castagnoli); got != want {
		return Batch{}, decodeErrf(nil, "crc mismatch: got %08x want %08x", got, want)
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (Batch, error) {
	c := cursor{b: body}
	worker, err := c.uvarint("worker id")
	if err != nil {
		return Batch{}, err
	}
	if worker > math.MaxInt32 {
		return Batch{}, decodeErrf(nil, "worker id %d out of range", worker)
	}
	count, err := c.uvarint("event count")
	if err != nil {
		return Batch{}, err
	}
	if count > uint64(len(c.b)-c.off) {
		// every event takes at least one byte
		return Batch{}, decodeErrf(nil, "event count %d inconsistent with body size", count)
	}
	batch := Batch{Worker: int(worker), Events: make([]Event, 0, count)}
	for i := uint64(0); i < count; i++ {
		ev, err := decodeEvent(&c, batch.Worker)
		if err != nil {
			return Batch{}, err
		}
		batch.Events = append(batch.Events, ev)
	}
	if c.off != len(c.b) {
		return Batch{}, decodeErrf(nil, "%d trailing bytes after %d events", len(c.b)-c.off, count)
	}
	return batch, nil
}

func decodeEvent(c *cursor, worker int) (Event, error) {
	tag, err := c.byte("event tag")
	if err != nil {
		return Event{}, err
	}
	ts, err := c.uvarint("timestamp")
	if err != nil {
		return Event{}, err
	}
	ev := Event{Worker: worker, TS: time.Duration(ts)}
	switch tag {
	case tagOperatorCreate:
		addr, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		id, err := c.uvarint("operator id")
		if err != nil {
			return Event{}, err
		}
		nameLen, err := c.uvarint("name length")
		if err != nil {
			return Event{}, err
		}
		name, err := c.bytes(int(nameLen), "operator name")
		if err != nil {
			return Event{}, err
		}
		ev.Payload = OperatorCreate{Addr: addr, ID: id, Name: string(name)}
	case tagChannelCreate:
		src, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		dst, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		ev.Payload = ChannelCreate{Source: src, Target: dst}
	case tagScheduleStart:
		addr, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		ev.Payload = ScheduleStart{Addr: addr}
	case tagScheduleStop:
		addr, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		ev.Payload = ScheduleStop{Addr: addr}
	case tagArrangementDelta:
		addr, err := c.addr()
		if err != nil {
			return Event{}, err
		}
		raw, err := c.uvarint("delta")
		if err != nil {
			return Event{}, err
		}
		ev.Payload = ArrangementDelta{Addr: addr, Delta: unzigzag(raw)}
	default:
		return Event{}, decodeErrf(nil, "unknown payload tag 0x%02x", tag)
	}
	return ev, nil
}

// cursor walks a frame body.
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) byte(what string) (byte, error) {
	if c.off >= len(c.b) {
		return 0, decodeErrf(nil, "truncated %s", what)
	}
	v := c.b[c.off]
	c.off++
	return v, nil
}

func (c *cursor) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(c.b[c.off:])
	if n <= 0 {
		return 0, decodeErrf(nil, "truncated %s", what)
	}
	c.off += n
	return v, nil
}

func (c *cursor) bytes(n int, what string) ([]byte, error) {
	if n < 0 || c.off+n > len(c.b) {
		return nil, decodeErrf(nil, "truncated %s", what)
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v, nil
}

func (c *cursor) addr() (Addr, error) {
	n, err := c.uvarint("address length")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, decodeErrf(nil, "empty address")
	}
	if n > uint64(len(c.b)-c.off) {
		return nil, decodeErrf(nil, "address length %d inconsistent with body size", n)
	}
	addr := make(Addr, 0, n)
	for i := uint64(0); i < n; i++ {
		e, err := c.uvarint("address element")
		if err != nil {
			return nil, err
		}
		if e > math.MaxInt32 {
			return nil, decodeErrf(nil, "address element %d out of range", e)
		}
		addr = append(addr, int(e))
	}
	return addr, nil
}
