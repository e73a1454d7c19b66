package protocol

import "sync/atomic"

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it parses host frames,
// acknowledges them and frames responses into an OutputBuffer.
type Transport struct {
	reader       frameReader
	nextSequence uint32 // atomic; expected host sequence, 0x10..0x1F

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
	errorCallback func(cmdID uint16, err error)
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.reader.synced = true
	t.reader.onResync = t.encodeAckNak
	return t
}

// Receive consumes every complete frame in input. Each frame is
// acknowledged with the next expected sequence; a frame out of sequence
// is not executed and the acknowledgement acts as a NAK.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	total := len(data)
	for {
		seq, payload, rest, ok := t.reader.next(data)
		data = rest
		if !ok {
			break
		}
		expected := uint8(atomic.LoadUint32(&t.nextSequence))
		if seq == MessageDest && expected != MessageDest {
			// Host restarted its sequence.
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if seq == expected {
			atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(seq)))
			t.parseFrame(payload)
		}
		t.encodeAckNak()
	}
	input.Pop(total - len(data))
}

// parseFrame dispatches every command in one frame. A handler panic
// drops sync so the host retransmits from a clean state.
func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.reader.synced = false
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.reader.synced = false
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.errorCallback != nil {
				t.errorCallback(uint16(cmdID), err)
			}
			return
		}
	}
}

// encodeAckNak writes an empty frame carrying the next expected sequence
// and flushes it ahead of any response.
func (t *Transport) encodeAckNak() {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	var buf [MessageLengthMin]byte
	ack, _ := AppendFrame(buf[:0], seq, nil)
	t.output.Output(ack)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame frames whatever frameData writes, patching the length once
// the payload is known.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})
	frameData(t.output)

	n := len(t.output.DataSince(cursor)) + MessageTrailerSize
	t.output.Update(cursor, uint8(n))
	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand sends a command with arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset restores the power-on link state.
func (t *Transport) Reset() {
	t.reader.synced = true
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

func (t *Transport) SetResetCallback(callback func()) { t.resetCallback = callback }

// SetFlushCallback installs a hook that pushes pending output to the wire
// right after each ACK.
func (t *Transport) SetFlushCallback(callback func()) { t.flushCallback = callback }

// SetErrorCallback is told about handler errors; the rest of that frame
// is skipped.
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}
