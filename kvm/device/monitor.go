package device

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allape/gogger"
)

var l = gogger.New("kvm.device")

// DefaultPollInterval matches the cadence targets tolerate well without
// hammering sysfs.
const DefaultPollInterval = 2 * time.Second

// Consecutive failed polls before the monitor escalates to callbacks.
const degradedAfter = 3

// ChangeEvent is delivered to monitor callbacks on every effective change,
// and once when polling degrades.
type ChangeEvent struct {
	Timestamp          time.Time `json:"timestamp"`
	CurrentDevices     []Record  `json:"current_devices"`
	ChangesFromLast    Diff      `json:"changes_from_last"`
	ChangesFromInitial Diff      `json:"changes_from_initial"`
	Degraded           bool      `json:"degraded,omitempty"`
	Error              string    `json:"error,omitempty"`
}

type Callback func(ChangeEvent)

// Monitor polls an enumerator and reports snapshot diffs to callbacks.
type Monitor struct {
	enum     Enumerator
	filter   Filter
	interval time.Duration

	initial atomic.Pointer[Snapshot]
	current atomic.Pointer[Snapshot]

	cbMu      sync.Mutex
	callbacks []Callback

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewMonitor(e Enumerator, f Filter, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	m := &Monitor{enum: e, filter: f.Normalize(), interval: interval}
	empty := &Snapshot{Timestamp: time.Now()}
	m.initial.Store(empty)
	m.current.Store(empty)
	return m
}

// OnChange registers a callback. Callbacks run on the monitor goroutine in
// registration order; a panic in one does not starve the rest.
func (m *Monitor) OnChange(cb Callback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start captures the initial snapshot synchronously, then polls in the
// background. Starting a running monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		l.Warn().Println("monitor already running")
		return nil
	}

	snap, err := Capture(m.enum, m.filter)
	if err != nil {
		// best effort, the poll loop keeps trying
		l.Warn().Println("initial snapshot:", err)
		snap = Snapshot{Timestamp: time.Now()}
	}
	m.initial.Store(&snap)
	m.current.Store(&snap)

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)

	l.Info().Printf("monitoring %d devices every %v", len(snap.Devices), m.interval)
	return nil
}

// Stop ends polling and waits for the loop to wind down. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	l.Info().Println("monitor stopped")
}

// InitialState is the snapshot captured when monitoring started.
func (m *Monitor) InitialState() Snapshot {
	return *m.initial.Load()
}

// CurrentState is the most recent snapshot.
func (m *Monitor) CurrentState() Snapshot {
	return *m.current.Load()
}

func (m *Monitor) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		snap, err := Capture(m.enum, m.filter)
		if err != nil {
			failures++
			l.Warn().Printf("poll failed (%d in a row): %s", failures, err)
			if failures == degradedAfter {
				m.emit(ChangeEvent{
					Timestamp:      time.Now(),
					CurrentDevices: m.CurrentState().Devices,
					Degraded:       true,
					Error:          err.Error(),
				})
			}
			continue
		}
		failures = 0

		prev := m.current.Load()
		diff := Compare(snap, *prev)
		m.current.Store(&snap)
		if diff.Empty() {
			continue
		}

		m.emit(ChangeEvent{
			Timestamp:          snap.Timestamp,
			CurrentDevices:     snap.Devices,
			ChangesFromLast:    diff,
			ChangesFromInitial: Compare(snap, *m.initial.Load()),
		})
	}
}

func (m *Monitor) emit(e ChangeEvent) {
	m.cbMu.Lock()
	cbs := slices.Clone(m.callbacks)
	m.cbMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.Error().Println("change callback panic:", r)
				}
			}()
			cb(e)
		}()
	}
}
