package protocol

import "errors"

var (
	// ErrFrameIncomplete means more bytes are needed; keep the input.
	ErrFrameIncomplete = errors.New("incomplete frame")
	// ErrFrameInvalid means the input does not start with a valid frame;
	// the reader resynchronizes on the next sync byte.
	ErrFrameInvalid = errors.New("invalid frame")
	ErrFrameTooLong = errors.New("frame too long")
)

// AppendFrame appends one complete frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := MessageLengthMin + len(payload)
	if n > MessageLengthMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}

// ParseFrame validates the frame at the start of data, returning its
// sequence byte, payload (aliasing data) and total length.
func ParseFrame(data []byte) (seq uint8, payload []byte, n int, err error) {
	if len(data) < MessageLengthMin {
		return 0, nil, 0, ErrFrameIncomplete
	}
	n = int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return 0, nil, 0, ErrFrameInvalid
	}
	seq = data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return 0, nil, 0, ErrFrameInvalid
	}
	if len(data) < n {
		return 0, nil, 0, ErrFrameIncomplete
	}
	if data[n-1] != MessageValueSync {
		return 0, nil, 0, ErrFrameInvalid
	}
	crc := uint16(data[n-3])<<8 | uint16(data[n-2])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return 0, nil, 0, ErrFrameInvalid
	}
	return seq, data[MessageHeaderSize : n-MessageTrailerSize], n, nil
}

// skipToSync returns data after the first sync byte, or nil if none.
func skipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// frameReader walks a receive buffer frame by frame, tracking sync.
type frameReader struct {
	synced   bool
	onResync func()
}

// next returns the next valid frame in data and the remaining input.
// ok is false when data holds no further complete frame.
func (r *frameReader) next(data []byte) (seq uint8, payload, rest []byte, ok bool) {
	for len(data) > 0 {
		if !r.synced {
			var found bool
			data, found = skipToSync(data)
			if !found {
				return 0, nil, nil, false
			}
			r.synced = true
			if r.onResync != nil {
				r.onResync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		seq, payload, n, err := ParseFrame(data)
		switch err {
		case nil:
			return seq, payload, data[n:], true
		case ErrFrameIncomplete:
			return 0, nil, data, false
		default:
			r.synced = false
		}
	}
	return 0, nil, data, false
}
