package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func encodeCommand(t *testing.T, seq uint8, cmdID uint16, args ...int32) []byte {
	t.Helper()
	out := NewScratchOutput()
	EncodeVLQUint(out, uint32(cmdID))
	for _, a := range args {
		EncodeVLQInt(out, a)
	}
	f, err := AppendFrame(nil, seq, out.Result())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestTransportReceiveAcksAndDispatches(t *testing.T) {
	out := NewScratchOutput()
	var got []int32
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQInt(data)
		got = append(got, int32(cmdID), v)
		return err
	})

	in := NewSliceInputBuffer(encodeCommand(t, 0x10, 4, -7))
	tr.Receive(in)

	if len(got) != 2 || got[0] != 4 || got[1] != -7 {
		t.Fatalf("handler saw %v", got)
	}
	if in.Available() != 0 {
		t.Errorf("input not consumed: %d", in.Available())
	}
	ack, _ := AppendFrame(nil, 0x11, nil)
	if !bytes.Equal(out.Result(), ack) {
		t.Errorf("ack % x, want % x", out.Result(), ack)
	}
}

func TestTransportOutOfSequenceIsNaked(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(uint16, *[]byte) error { calls++; return nil })

	tr.Receive(NewSliceInputBuffer(encodeCommand(t, 0x13, 1)))
	if calls != 0 {
		t.Errorf("out-of-sequence frame dispatched")
	}
	nak, _ := AppendFrame(nil, 0x10, nil)
	if !bytes.Equal(out.Result(), nak) {
		t.Errorf("nak % x, want % x", out.Result(), nak)
	}
}

func TestTransportKeepsPartialFrame(t *testing.T) {
	tr := NewTransport(NewScratchOutput(), func(uint16, *[]byte) error { return nil })
	f := encodeCommand(t, 0x10, 2, 1000)
	fifo := NewFifoBuffer(128)
	fifo.Write(f[:4])
	tr.Receive(fifo)
	if fifo.Available() != 4 {
		t.Fatalf("partial frame dropped, %d left", fifo.Available())
	}
	fifo.Write(f[4:])
	tr.Receive(fifo)
	if !fifo.IsEmpty() {
		t.Errorf("complete frame not consumed")
	}
}

func TestSendCommandFramesResponse(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	tr.SendCommand(9, func(o OutputBuffer) { EncodeVLQString(o, "ok") })

	seq, payload, n, err := ParseFrame(out.Result())
	if err != nil || n != len(out.Result()) || seq != MessageDest {
		t.Fatalf("seq=%#x n=%d err=%v", seq, n, err)
	}
	id, _ := DecodeVLQUint(&payload)
	s, _ := DecodeVLQString(&payload)
	if id != 9 || s != "ok" {
		t.Errorf("id=%d s=%q", id, s)
	}
}

// serveMCU runs a firmware-side Transport on conn until it closes.
func serveMCU(conn net.Conn, handler CommandHandler) {
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(cmdID uint16, data *[]byte) error {
		err := handler(cmdID, data)
		tr.SendCommand(cmdID+100, func(o OutputBuffer) { EncodeVLQUint(o, uint32(cmdID)) })
		return err
	})
	fifo := NewFifoBuffer(512)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		fifo.Write(buf[:n])
		tr.Receive(fifo)
		if res := out.Result(); len(res) > 0 {
			if _, err := conn.Write(append([]byte(nil), res...)); err != nil {
				return
			}
			out.Reset()
		}
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostConn, mcuConn := net.Pipe()
	go serveMCU(mcuConn, func(cmdID uint16, data *[]byte) error {
		_, err := DecodeVLQInt(data)
		return err
	})
	defer mcuConn.Close()

	ht := NewHostTransport(hostConn)
	defer ht.Close()

	for i := 0; i < 20; i++ {
		err := ht.SendCommandWithTimeout(3, func(o OutputBuffer) { EncodeVLQInt(o, int32(i)) }, time.Second)
		if err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		msg, err := ht.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
		p := msg.Payload
		id, _ := DecodeVLQUint(&p)
		if id != 103 {
			t.Errorf("response id %d", id)
		}
	}
	// 20 commands wrap the 16-entry sequence window.
	if got := ht.CurrentSequence(); got != NextSequence(0x10+3) {
		t.Errorf("sequence %#x", got)
	}
}
