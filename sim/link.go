package sim

import (
	"io"
	"strconv"

	"gosine/core"
	"gosine/protocol"
)

// Link serves the firmware protocol over rw. Bytes are read on a
// background goroutine; framing, dispatch and writes happen in Poll, on
// the simulation goroutine, like the firmware main loop.
type Link struct {
	rw     io.ReadWriter
	in     chan []byte
	done   chan error
	fifo   *protocol.FifoBuffer
	out    *protocol.ScratchOutput
	tr     *protocol.Transport
	err    error
	errors uint32
}

func NewLink(rw io.ReadWriter) *Link {
	l := &Link{
		rw:   rw,
		in:   make(chan []byte, 16),
		done: make(chan error, 1),
		fifo: protocol.NewFifoBuffer(1024),
		out:  protocol.NewScratchOutput(),
	}
	l.tr = protocol.NewTransport(l.out, core.DispatchCommand)
	l.tr.SetFlushCallback(l.flush)
	l.tr.SetResetCallback(func() {
		l.fifo.Reset()
		l.out.Reset()
	})
	l.tr.SetErrorCallback(func(cmdID uint16, err error) {
		l.errors++
		core.DebugAsync("[LINK] cmd " + strconv.Itoa(int(cmdID)) + ": " + err.Error())
	})
	go l.readLoop()
	return l
}

// Sender is the response path for core.SetGlobalTransport.
func (l *Link) Sender() core.ResponseSender {
	return l.tr
}

func (l *Link) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := l.rw.Read(buf)
		if n > 0 {
			l.in <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			l.done <- err
			close(l.in)
			return
		}
	}
}

// Poll handles everything received since the last call and writes out
// pending responses. It returns the read error once the peer is gone.
func (l *Link) Poll() error {
	for l.err == nil {
		select {
		case b, ok := <-l.in:
			if !ok {
				l.err = <-l.done
				break
			}
			l.fifo.Write(b)
			l.tr.Receive(l.fifo)
			continue
		default:
		}
		break
	}
	l.flush()
	return l.err
}

func (l *Link) flush() {
	res := l.out.Result()
	if len(res) == 0 || l.err != nil {
		l.out.Reset()
		return
	}
	if _, err := l.rw.Write(res); err != nil {
		l.err = err
	}
	l.out.Reset()
}

// Errors counts commands whose handler failed.
func (l *Link) Errors() uint32 {
	return l.errors
}
