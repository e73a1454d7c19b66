// inverter-sim serves a simulated inverter on TCP so inverter-host can
// be used without hardware. Connections are served one at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"gosine/core"
	"gosine/sim"
)

var (
	listen   = flag.String("listen", "127.0.0.1:5555", "TCP listen address")
	params   = flag.String("params", "", "JSON parameter file")
	udc      = flag.Float64("udc", 300, "DC-link voltage, V")
	loadR    = flag.Float64("r", 0, "phase resistance, ohm (default 10)")
	loadL    = flag.Float64("l", 0, "phase inductance, H (default 20e-3)")
	noise    = flag.Float64("noise", 0.2, "current measurement noise, A")
	seed     = flag.Int64("seed", 1, "noise seed")
	realtime = flag.Bool("realtime", true, "pace the simulation to wall-clock time")
	debug    = flag.Bool("debug", false, "print firmware debug output")
)

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := sim.Config{
		Udc:      *udc,
		Realtime: *realtime,
		Load:     sim.LoadConfig{R: *loadR, L: *loadL, Noise: *noise, Seed: *seed},
	}
	if *params != "" {
		data, err := os.ReadFile(*params)
		if err != nil {
			slog.Error("read params", "error", err)
			os.Exit(1)
		}
		cfg.Params = data
	}
	if *debug {
		core.SetDebugWriter(func(msg string) { slog.Debug(msg) })
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		slog.Error("listen", "error", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	slog.Info("listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("accept", "error", err)
			}
			return
		}
		if err := serve(ctx, cfg, conn); err != nil {
			slog.Error("session ended", "peer", conn.RemoteAddr(), "error", err)
		}
	}
}

// serve runs a fresh simulation for one connection.
func serve(ctx context.Context, cfg sim.Config, conn net.Conn) error {
	defer conn.Close()
	slog.Info("session started", "peer", conn.RemoteAddr())

	s, err := sim.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	link := s.Attach(conn)

	err = s.Run(ctx, 0)
	slog.Info("session closed", "peer", conn.RemoteAddr(),
		"simulated_s", s.Seconds(), "link_errors", link.Errors(), "trip", s.Inverter.Cause())
	if *debug {
		core.DumpTimingRing()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
