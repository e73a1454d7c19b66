// Package recorder keeps a SQLite history of inverter status reports and
// trips, one session per host connection.
package recorder

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"gosine/core"
	"gosine/host/client"
)

// Session is one connection to an inverter.
type Session struct {
	ID      string `db:"id"`
	Device  string `db:"device"`
	Version string `db:"version"`
	Started int64  `db:"started_ns"`
}

// StatusRow is one recorded inverter_status.
type StatusRow struct {
	ID        int64   `db:"id"`
	Session   string  `db:"session"`
	At        int64   `db:"at_ns"`
	Mode      string  `db:"mode"`
	Tripped   bool    `db:"tripped"`
	Cause     string  `db:"cause"`
	Frequency float64 `db:"freq"`
	Amplitude int64   `db:"amp"`
	Peak      float64 `db:"peak"`
	Cycles    int64   `db:"cycles"`
	Misses    int64   `db:"misses"`
}

// TripRow is one recorded trip_event.
type TripRow struct {
	ID      int64  `db:"id"`
	Session string `db:"session"`
	At      int64  `db:"at_ns"`
	Cause   string `db:"cause"`
	Clock   int64  `db:"clock"`
}

func (r StatusRow) Time() time.Time { return time.Unix(0, r.At) }
func (r TripRow) Time() time.Time   { return time.Unix(0, r.At) }

type record struct {
	session string
	at      time.Time
	status  *core.Status
	trip    *client.TripEvent
}

const queueDepth = 256

// Recorder writes records on its own goroutine so link callbacks never
// wait on the database.
type Recorder struct {
	conn    *sqlx.DB
	path    string
	session atomic.Value // string

	qmu     sync.RWMutex // guards queue against close
	queue   chan record
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	r := &Recorder{conn: conn, path: path, queue: make(chan record, queueDepth)}
	if err := r.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r, nil
}

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		version TEXT NOT NULL,
		started_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		at_ns INTEGER NOT NULL,
		mode TEXT NOT NULL,
		tripped INTEGER NOT NULL,
		cause TEXT NOT NULL,
		freq REAL NOT NULL,
		amp INTEGER NOT NULL,
		peak REAL NOT NULL,
		cycles INTEGER NOT NULL,
		misses INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		at_ns INTEGER NOT NULL,
		cause TEXT NOT NULL,
		clock INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_session ON status(session, at_ns);
	CREATE INDEX IF NOT EXISTS idx_trips_session ON trips(session, at_ns);
	`
	_, err := r.conn.Exec(schema)
	return err
}

// StartSession creates a session that later records are filed under.
func (r *Recorder) StartSession(device, version string) (string, error) {
	id := uuid.NewString()
	_, err := r.conn.Exec(
		"INSERT INTO sessions (id, device, version, started_ns) VALUES (?, ?, ?, ?)",
		id, device, version, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	r.session.Store(id)
	return id, nil
}

// Attach records everything c reports. Close the client before the
// recorder.
func (r *Recorder) Attach(c *client.Client) {
	c.OnStatus(r.Status)
	c.OnTrip(r.Trip)
}

// Status queues a status report. It never blocks; a full queue or a
// closed recorder drops.
func (r *Recorder) Status(st core.Status) {
	r.enqueue(record{at: time.Now(), status: &st})
}

// Trip queues a trip event.
func (r *Recorder) Trip(ev client.TripEvent) {
	r.enqueue(record{at: time.Now(), trip: &ev})
}

func (r *Recorder) enqueue(rec record) {
	rec.session, _ = r.session.Load().(string)
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for rec := range r.queue {
		if err := r.write(rec); err != nil {
			r.failed.Add(1)
		}
	}
}

func (r *Recorder) write(rec record) error {
	at := rec.at.UnixNano()
	if st := rec.status; st != nil {
		_, err := r.conn.Exec(`INSERT INTO status
			(session, at_ns, mode, tripped, cause, freq, amp, peak, cycles, misses)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.session, at, st.Mode.String(), st.Tripped, st.Cause.String(),
			st.Frequency.Float(), int64(st.Amplitude), st.PeakCurrent.Float(),
			int64(st.Cycles), int64(st.DeadlineMisses),
		)
		return err
	}
	_, err := r.conn.Exec(
		"INSERT INTO trips (session, at_ns, cause, clock) VALUES (?, ?, ?, ?)",
		rec.session, at, rec.trip.Cause.String(), int64(rec.trip.Clock),
	)
	return err
}

func (r *Recorder) Path() string { return r.path }

// Dropped counts records lost to a full queue or a closed recorder;
// Failed counts write errors.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

// Sessions lists sessions, newest first.
func (r *Recorder) Sessions() ([]Session, error) {
	var s []Session
	err := r.conn.Select(&s, "SELECT id, device, version, started_ns FROM sessions ORDER BY started_ns DESC")
	return s, err
}

// RecentStatus returns up to limit status rows of session, newest first.
func (r *Recorder) RecentStatus(session string, limit int) ([]StatusRow, error) {
	var rows []StatusRow
	err := r.conn.Select(&rows,
		"SELECT * FROM status WHERE session = ? ORDER BY id DESC LIMIT ?",
		session, limit,
	)
	return rows, err
}

// Trips returns every trip of session in order.
func (r *Recorder) Trips(session string) ([]TripRow, error) {
	var rows []TripRow
	err := r.conn.Select(&rows, "SELECT * FROM trips WHERE session = ? ORDER BY id", session)
	return rows, err
}

// Close writes out queued records and closes the database.
func (r *Recorder) Close() error {
	r.qmu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.qmu.Unlock()
	r.wg.Wait()
	return r.conn.Close()
}
