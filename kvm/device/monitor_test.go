package device

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeEnumerator struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (e *fakeEnumerator) Enumerate(Filter) ([]Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return slices.Clone(e.records), nil
}

func (e *fakeEnumerator) set(records []Record, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = records
	e.err = err
}

func waitEvent(t *testing.T, events chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a change event, got none")
		return ChangeEvent{}
	}
}

func TestMonitorNoChangeNoCallbacks(t *testing.T) {
	enum := &fakeEnumerator{records: []Record{{PortChain: "usb1-1-5.1", SerialPort: "/dev/ttyUSB0"}}}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	events := make(chan ChangeEvent, 16)
	m.OnChange(func(e ChangeEvent) { events <- e })

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	if len(events) != 0 {
		t.Fatalf("Expected no callbacks for identical snapshots, got %d", len(events))
	}
	if n := len(m.InitialState().Devices); n != 1 {
		t.Fatalf("Expected 1 device in the initial snapshot, got %d", n)
	}
}

func TestMonitorDetectsAdditionAndReturnToInitial(t *testing.T) {
	first := Record{PortChain: "usb1-1-5.1", SerialPort: "/dev/ttyUSB0"}
	second := Record{PortChain: "usb1-1-6.1", SerialPort: "/dev/ttyUSB1"}

	enum := &fakeEnumerator{records: []Record{first}}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	events := make(chan ChangeEvent, 16)
	m.OnChange(func(e ChangeEvent) { events <- e })

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	enum.set([]Record{first, second}, nil)
	e := waitEvent(t, events)
	if len(e.ChangesFromLast.Added) != 1 || e.ChangesFromLast.Added[0].SerialPort != "/dev/ttyUSB1" {
		t.Fatalf("Expected ttyUSB1 added, got %+v", e.ChangesFromLast)
	}
	if len(e.ChangesFromInitial.Added) != 1 {
		t.Fatalf("Expected the initial diff to show the addition, got %+v", e.ChangesFromInitial)
	}
	if len(e.CurrentDevices) != 2 || len(m.CurrentState().Devices) != 2 {
		t.Fatal("Expected the current snapshot to hold both devices")
	}

	enum.set([]Record{first}, nil)
	e = waitEvent(t, events)
	if len(e.ChangesFromLast.Removed) != 1 {
		t.Fatalf("Expected ttyUSB1 removed, got %+v", e.ChangesFromLast)
	}
	if !e.ChangesFromInitial.Empty() {
		t.Fatalf("Expected no drift from the initial snapshot, got %+v", e.ChangesFromInitial)
	}
}

func TestMonitorCallbackPanicIsolated(t *testing.T) {
	enum := &fakeEnumerator{}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	events := make(chan ChangeEvent, 16)
	m.OnChange(func(ChangeEvent) { panic("boom") })
	m.OnChange(func(e ChangeEvent) { events <- e })

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	enum.set([]Record{{PortChain: "usb1-1-5.1", SerialPort: "/dev/ttyUSB0"}}, nil)
	e := waitEvent(t, events)
	if len(e.ChangesFromLast.Added) != 1 {
		t.Fatalf("Expected the second callback to still run, got %+v", e)
	}
}

func TestMonitorDegradedAfterRepeatedFailures(t *testing.T) {
	enum := &fakeEnumerator{records: []Record{{PortChain: "usb1-1-5.1", SerialPort: "/dev/ttyUSB0"}}}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	events := make(chan ChangeEvent, 16)
	m.OnChange(func(e ChangeEvent) { events <- e })

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	enum.set(nil, errors.New("sysfs walk failed"))
	e := waitEvent(t, events)
	if !e.Degraded || e.Error == "" {
		t.Fatalf("Expected a degraded event, got %+v", e)
	}
	// survived devices stay visible while polling is degraded
	if len(e.CurrentDevices) != 1 {
		t.Fatalf("Expected the last good snapshot in the event, got %+v", e.CurrentDevices)
	}

	// escalate once, not on every subsequent failure
	time.Sleep(100 * time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("Expected a single degraded event, got %d more", len(events))
	}
}

func TestMonitorStartAndStopIdempotent(t *testing.T) {
	enum := &fakeEnumerator{}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Expected starting twice to be a no-op, got %v", err)
	}
	m.Stop()
	m.Stop()
}

func TestMonitorCallbackOrder(t *testing.T) {
	enum := &fakeEnumerator{}
	m := NewMonitor(enum, DefaultFilter(), 10*time.Millisecond)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 1)
	m.OnChange(func(ChangeEvent) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	m.OnChange(func(ChangeEvent) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	enum.set([]Record{{PortChain: "usb1-1-5.1"}}, nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected callbacks to run")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(order[:2], []int{1, 2}) {
		t.Fatalf("Expected registration order, got %v", order)
	}
}
