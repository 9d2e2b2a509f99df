// Package wire defines the execution-event model emitted by source peers and
// the binary frame codec used on the diagnostic connections.
//
// Each connection carries a sequence of length-prefixed frames. A frame holds
// one or more events for a single worker and is self-describing: a fixed tag
// per payload kind, varint-encoded integers, and a crc32c trailer over the
// body. Record encoding:
//
//	frame := length(u32 BE, body+crc) body crc32c(body, u32 BE)
//	body  := worker(uvarint) count(uvarint) count*event
//	event := tag(u8) ts_ns(uvarint) payload
//	addr  := n(uvarint) n*elem(uvarint)
//
// Decoding failure (truncated frame, unknown tag, crc mismatch, oversized
// body) is fatal for the connection; the reader does not resynchronize.
package wire
