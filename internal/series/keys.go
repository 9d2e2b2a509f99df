package series

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - sr/{elapsed_ms_be8}/{worker_be4}/{addr elems, be4 each}
//
// Elapsed-first ordering makes a plain forward scan replay the emitted rows
// in snapshot order; worker and address break ties the same way Flush sorts
// them.

var rowPrefix = []byte("sr/")

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyRow builds the full key for one row.
func keyRow(elapsedMs uint64, worker uint32, addr []int) []byte {
	k := make([]byte, 0, len(rowPrefix)+13+4*len(addr))
	k = append(k, rowPrefix...)
	k = appendBE8(k, elapsedMs)
	k = append(k, '/')
	k = appendBE4(k, worker)
	k = append(k, '/')
	for _, e := range addr {
		k = appendBE4(k, uint32(e))
	}
	return k
}

// keyLowerBound is the smallest possible row key at elapsedMs.
func keyLowerBound(elapsedMs uint64) []byte {
	k := make([]byte, 0, len(rowPrefix)+9)
	k = append(k, rowPrefix...)
	k = appendBE8(k, elapsedMs)
	return k
}

// parseKey recovers elapsed, worker, and address from a row key.
func parseKey(k []byte) (elapsedMs uint64, worker uint32, addr []int, ok bool) {
	if len(k) < len(rowPrefix)+8+1+4+1 {
		return 0, 0, nil, false
	}
	p := k[len(rowPrefix):]
	elapsedMs = binary.BigEndian.Uint64(p[:8])
	p = p[9:]
	worker = binary.BigEndian.Uint32(p[:4])
	p = p[5:]
	if len(p)%4 != 0 || len(p) == 0 {
		return 0, 0, nil, false
	}
	addr = make([]int, 0, len(p)/4)
	for len(p) > 0 {
		addr = append(addr, int(binary.BigEndian.Uint32(p[:4])))
		p = p[4:]
	}
	return elapsedMs, worker, addr, true
}
