package protocol

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Request framing: a two-byte header (magic, opcode), then one big-endian
// length/count field per integer argument in argument order (uint32 for int,
// uint64 for int64), then the raw bytes of every string/byte argument in
// argument order. A []string argument flattens into (uint32 length, bytes)
// pairs, one per element, inside the payload section.

var payloadPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

// appendRequest appends the packed request for code and args to dst.
//
// Accepted argument types: int, uint32 (4-byte field), int64, uint64
// (8-byte field), string, []byte (payload), []string (length-prefixed
// payload list). Negative int values wrap to uint32, which is how the
// protocol spells "unbounded" for counts like fwmkeys' maxkeys.
func appendRequest(dst []byte, code Opcode, args ...any) ([]byte, error) {
	pp := payloadPool.Get().(*[]byte)
	payload := (*pp)[:0]
	defer func() {
		*pp = payload[:0]
		payloadPool.Put(pp)
	}()

	dst = append(dst, Magic, byte(code))

	for _, arg := range args {
		switch v := arg.(type) {
		case int:
			dst = binary.BigEndian.AppendUint32(dst, uint32(int32(v)))
		case uint32:
			dst = binary.BigEndian.AppendUint32(dst, v)
		case int64:
			dst = binary.BigEndian.AppendUint64(dst, uint64(v))
		case uint64:
			dst = binary.BigEndian.AppendUint64(dst, v)
		case string:
			payload = append(payload, v...)
		case []byte:
			payload = append(payload, v...)
		case []string:
			for _, elem := range v {
				payload = binary.BigEndian.AppendUint32(payload, uint32(len(elem)))
				payload = append(payload, elem...)
			}
		default:
			return nil, &ArgumentError{Message: fmt.Sprintf("cannot pack argument of type %T", arg)}
		}
	}

	return append(dst, payload...), nil
}
