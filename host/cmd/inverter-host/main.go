// inverter-host is an interactive console for an inverter on a serial
// port or a simulator on TCP.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/google/shlex"

	"gosine/host/client"
	"gosine/host/recorder"
	"gosine/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "serial device")
	baud    = flag.Int("baud", serial.DefaultBaud, "baud rate (ignored by USB CDC)")
	tcpAddr = flag.String("tcp", "", "connect to inverter-sim at host:port instead of a serial device")
	dbPath  = flag.String("db", "", "record status and trips to this SQLite file")
	report  = flag.Duration("report", 0, "start periodic status reports at this interval")
	verbose = flag.Bool("verbose", false, "debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	port, name, err := openPort()
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	c := client.New(port)
	defer c.Close()

	dict, err := c.Identify(ctx)
	if err != nil {
		slog.Error("identify failed", "device", name, "error", err)
		os.Exit(1)
	}
	slog.Info("connected", "device", name, "version", dict.Constants["VERSION"], "messages", len(dict.Messages))

	sh := &shell{c: c, out: os.Stdout}
	if *dbPath != "" {
		rec, err := recorder.Open(*dbPath)
		if err != nil {
			slog.Error("recorder", "error", err)
			os.Exit(1)
		}
		defer rec.Close()
		sess, err := rec.StartSession(name, dict.Constants["VERSION"])
		if err != nil {
			slog.Error("recorder", "error", err)
			os.Exit(1)
		}
		rec.Attach(c)
		sh.rec, sh.session = rec, sess
		slog.Info("recording", "path", *dbPath, "session", sess)
	} else {
		c.OnTrip(func(ev client.TripEvent) {
			slog.Warn("trip", "cause", ev.Cause, "clock", ev.Clock)
		})
	}
	if *report > 0 {
		if err := c.SetReport(ctx, *report); err != nil {
			slog.Error("set_report", "error", err)
		}
	}

	if err := sh.loop(ctx, os.Stdin); err != nil && err != io.EOF {
		slog.Error("console", "error", err)
		os.Exit(1)
	}
}

func openPort() (io.ReadWriteCloser, string, error) {
	if *tcpAddr != "" {
		conn, err := net.DialTimeout("tcp", *tcpAddr, 5*time.Second)
		return conn, *tcpAddr, err
	}
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	p, err := serial.Open(cfg)
	if err != nil {
		return nil, *device, err
	}
	// Drop anything left from a previous session before framing starts.
	if err := p.Flush(); err != nil {
		slog.Debug("flush", "error", err)
	}
	return p, *device, nil
}

// loop reads commands until quit, EOF or ctx ends.
func (sh *shell) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(sh.out, "type 'help' for commands")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		if ctx.Err() != nil {
			return nil
		}
		args, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
		err = sh.exec(cctx, args)
		cancel()
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}
