package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"gosine/core"
	"gosine/host/client"
	"gosine/host/recorder"
	"gosine/params"
)

type shell struct {
	c   *client.Client
	out io.Writer

	rec     *recorder.Recorder
	session string
}

const help = `commands:
  status                 read the inverter status
  mode <name>            off run manual boost buck sine acheat
  amp <percent>          amplitude setpoint
  fslip <hz>             slip frequency setpoint
  clear                  clear a latched trip
  estop                  emergency stop
  get <param>            read a parameter
  set <param> <value>    write a parameter
  params                 list parameters and their limits
  report <interval>      periodic status, e.g. 100ms; 0 stops
  clock                  read the inverter clock
  dict                   list the dictionary
  trips                  trips recorded this session (-db)
  quit`

func (sh *shell) exec(ctx context.Context, args []string) error {
	need := func(n int) error {
		if len(args) != n+1 {
			return fmt.Errorf("%s takes %d argument(s)", args[0], n)
		}
		return nil
	}
	num := func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}

	switch args[0] {
	case "help", "?":
		fmt.Fprintln(sh.out, help)

	case "status":
		st, err := sh.c.GetStatus(ctx)
		if err != nil {
			return err
		}
		sh.printStatus(st)

	case "mode":
		if err := need(1); err != nil {
			return err
		}
		m, ok := core.ParseMode(args[1])
		if !ok {
			return fmt.Errorf("unknown mode %q", args[1])
		}
		if err := sh.c.SetOpmode(ctx, m); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "mode %v requested\n", m)

	case "amp", "fslip":
		if err := need(1); err != nil {
			return err
		}
		v, err := num(args[1])
		if err != nil {
			return err
		}
		if args[0] == "amp" {
			return sh.c.SetAmpnom(ctx, v)
		}
		return sh.c.SetFslip(ctx, v)

	case "clear":
		if err := sh.c.ClearTrip(ctx); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "trip cleared")

	case "estop":
		return sh.c.EmergencyStop(ctx)

	case "get":
		if err := need(1); err != nil {
			return err
		}
		v, err := sh.c.GetParam(ctx, args[1])
		if err != nil {
			return err
		}
		sh.printParam(args[1], v)

	case "set":
		if err := need(2); err != nil {
			return err
		}
		v, err := num(args[2])
		if err != nil {
			return err
		}
		got, err := sh.c.SetParam(ctx, args[1], v)
		if err != nil {
			return fmt.Errorf("%w (still %g)", err, got)
		}
		sh.printParam(args[1], got)

	case "params":
		for _, p := range params.Table {
			fmt.Fprintf(sh.out, "%-10s %3d  %8s..%-8s default %-8s %s\n",
				p.Name, p.ID, p.Min, p.Max, p.Default, p.Unit)
		}

	case "report":
		if err := need(1); err != nil {
			return err
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return err
		}
		return sh.c.SetReport(ctx, d)

	case "clock":
		clk, err := sh.c.GetClock(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "clock %s ticks\n", humanize.Comma(int64(clk)))

	case "dict":
		d := sh.c.Dictionary()
		names := make([]string, 0, len(d.Messages))
		for n := range d.Messages {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return d.Messages[names[i]].ID < d.Messages[names[j]].ID })
		for _, n := range names {
			m := d.Messages[n]
			fmt.Fprintf(sh.out, "%3d %-18s %s\n", m.ID, m.Name, m.Format)
		}
		for k, v := range d.Constants {
			fmt.Fprintf(sh.out, "    %-18s %s\n", k, v)
		}

	case "trips":
		if sh.rec == nil {
			return fmt.Errorf("not recording; start with -db")
		}
		trips, err := sh.rec.Trips(sh.session)
		if err != nil {
			return err
		}
		for _, tr := range trips {
			fmt.Fprintf(sh.out, "%-12s %s\n", tr.Cause, humanize.Time(tr.Time()))
		}
		fmt.Fprintf(sh.out, "%d trip(s)\n", len(trips))

	default:
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	return nil
}

func (sh *shell) printStatus(st core.Status) {
	state := "ok"
	if st.Tripped {
		state = "TRIPPED (" + st.Cause.String() + ")"
	}
	fmt.Fprintf(sh.out, "mode %-7v %s\n", st.Mode, state)
	fmt.Fprintf(sh.out, "  frequency %s %v, amplitude %d, angle %d\n",
		humanize.SIWithDigits(st.Frequency.Float(), 2, "Hz"), st.Direction, st.Amplitude, st.Angle)
	fmt.Fprintf(sh.out, "  peak current %s\n", humanize.SIWithDigits(st.PeakCurrent.Float(), 1, "A"))
	fmt.Fprintf(sh.out, "  %s cycles, %s deadline misses\n",
		humanize.Comma(int64(st.Cycles)), humanize.Comma(int64(st.DeadlineMisses)))
}

func (sh *shell) printParam(name string, v float64) {
	unit := ""
	if p, ok := params.Lookup(name); ok {
		unit = p.Unit
	}
	fmt.Fprintf(sh.out, "%s = %s %s\n", name, humanize.FtoaWithDigits(v, 2), unit)
}
