package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransportClosed is returned once Close has been called.
var ErrTransportClosed = errors.New("transport stopped")

// ResponseHandler is a function type for handling received responses from MCU
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is one received frame.
type Message struct {
	Sequence uint8
	Payload  []byte // without header and trailer
}

// HostTransport is the host side of the link: it frames commands, waits
// for the acknowledgement and queues responses.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic, 0x10..0x1F

	reader      frameReader
	inputBuffer *FifoBuffer

	ackChan      chan *Message
	responseChan chan *Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	writeMutex sync.Mutex
	stopOnce   sync.Once
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewHostTransport starts the background reader on port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(1024),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 32),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.reader.synced = true
	go t.readLoop()
	return t
}

// SendCommand sends a command to the MCU and waits for ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	msg, err := AppendFrame(nil, seq, scratch.Result())
	if err != nil {
		return fmt.Errorf("build command %d: %w", cmdID, err)
	}
	if _, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	return t.waitForAck(seq, timeout)
}

// waitForAck expects the MCU to acknowledge with seq+1.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := NextSequence(seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				// NAK: the MCU still expects another sequence. Adopt it so
				// the next command lines up.
				atomic.StoreUint32(&t.currentSeq, uint32(ack.Sequence))
				return fmt.Errorf("nak: expected ack 0x%02x, got 0x%02x", want, ack.Sequence)
			}
			atomic.StoreUint32(&t.currentSeq, uint32(want))
			return nil
		case <-timer.C:
			return fmt.Errorf("ack timeout after %v", timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse receives a response message with timeout
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler sets a callback for handling responses asynchronously
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			t.inputBuffer.Write(buf[:n])
			t.processMessages()
		}
	}
}

func (t *HostTransport) processMessages() {
	data := t.inputBuffer.Data()
	total := len(data)
	for {
		seq, payload, rest, ok := t.reader.next(data)
		data = rest
		if !ok {
			break
		}
		t.dispatchMessage(&Message{Sequence: seq, Payload: append([]byte(nil), payload...)})
	}
	t.inputBuffer.Pop(total - len(data))
}

// dispatchMessage routes empty frames to the ACK path and everything else
// to the handler and response queue.
func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	h := t.responseHandler
	t.handlerMu.RUnlock()
	if h != nil {
		p := msg.Payload
		if cmdID, err := DecodeVLQUint(&p); err == nil {
			_ = h(uint16(cmdID), &p)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Queue full: drop the oldest.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// CurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
