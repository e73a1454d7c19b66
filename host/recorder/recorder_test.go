package recorder

import (
	"path/filepath"
	"testing"

	"gosine/core"
	"gosine/host/client"
)

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := r.StartSession("/dev/ttyACM0", "gosine-test")
	if err != nil {
		t.Fatal(err)
	}
	for i := uint32(1); i <= 3; i++ {
		r.Status(core.Status{
			Mode:        core.ModeSine,
			Frequency:   core.FixedFromInt(int32(10 * i)),
			Amplitude:   1000,
			PeakCurrent: core.FixedFromFloat(12.5),
			Cycles:      i,
		})
	}
	r.Trip(client.TripEvent{Cause: core.FaultOvercurrent, Clock: 4242})
	r.Status(core.Status{Mode: core.ModeOff, Tripped: true, Cause: core.FaultOvercurrent, Cycles: 4})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Dropped() != 0 || r.Failed() != 0 {
		t.Fatalf("dropped %d failed %d", r.Dropped(), r.Failed())
	}

	r, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	sessions, err := r.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != sess || sessions[0].Device != "/dev/ttyACM0" {
		t.Fatalf("sessions %+v", sessions)
	}

	rows, err := r.RecentStatus(sess, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !rows[0].Tripped || rows[0].Mode != "off" || rows[0].Cause != "overcurrent" {
		t.Errorf("newest row %+v", rows[0])
	}
	if rows[1].Frequency != 30 || rows[1].Peak != 12.5 || rows[1].Cycles != 3 || rows[1].Tripped {
		t.Errorf("second row %+v", rows[1])
	}
	if rows[0].Time().Before(rows[1].Time()) {
		t.Error("timestamps out of order")
	}

	trips, err := r.Trips(sess)
	if err != nil {
		t.Fatal(err)
	}
	if len(trips) != 1 || trips[0].Cause != "overcurrent" || trips[0].Clock != 4242 {
		t.Errorf("trips %+v", trips)
	}
}

func TestSessionsAreSeparate(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := r.StartSession("a", "v")
	r.Trip(client.TripEvent{Cause: core.FaultBreak})
	b, _ := r.StartSession("b", "v")
	r.Trip(client.TripEvent{Cause: core.FaultDesat})
	r.Trip(client.TripEvent{Cause: core.FaultEmergencyStop})
	if a == b {
		t.Fatal("session ids collide")
	}
	// Close drains the queue; reads after that go to a fresh handle.
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	r, err = Open(r.path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	ta, _ := r.Trips(a)
	tb, _ := r.Trips(b)
	if len(ta) != 1 || ta[0].Cause != "break" {
		t.Errorf("session a trips %+v", ta)
	}
	if len(tb) != 2 || tb[1].Cause != "estop" {
		t.Errorf("session b trips %+v", tb)
	}
}

func TestRecordsAfterCloseAreDropped(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	// A report racing the shutdown must not reach the closed queue.
	r.Status(core.Status{Mode: core.ModeSine})
	r.Trip(client.TripEvent{Cause: core.FaultDesat})
	if r.Dropped() != 2 {
		t.Errorf("dropped %d", r.Dropped())
	}
}
