// Package conn manages the serial link to the chip: connecting with baud
// rate fallback, one read loop per open port, a single-slot synchronous
// request path and a FIFO asynchronous send queue.
package conn

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/kvmbridge/kvm/command"
	"github.com/allape/kvmbridge/kvm/frame"
)

var l = gogger.New("kvm.conn")

var (
	ErrPortUnavailable  = errors.New("conn: port unavailable")
	ErrConnectTimeout   = errors.New("conn: connect timeout")
	ErrResponseTimeout  = errors.New("conn: response timeout")
	ErrConnectionClosed = errors.New("conn: connection closed")
	ErrNotConnected     = errors.New("conn: not connected")
	ErrQueueFull        = errors.New("conn: send queue full")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateBaudProbing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateBaudProbing:
		return "baud-probing"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type EventType string

const (
	EventConnected      EventType = "connected"
	EventDisconnected   EventType = "disconnected"
	EventConnectionLost EventType = "connection-lost"
	EventIndicators     EventType = "indicators"
)

// Event is delivered to registered event callbacks on every connection
// lifecycle change and on target lock-key changes.
type Event struct {
	Type       EventType          `json:"type"`
	Port       string             `json:"port,omitempty"`
	Baud       int                `json:"baud,omitempty"`
	Indicators command.Indicators `json:"indicators"`
	Message    string             `json:"message,omitempty"`
}

type EventCallback func(Event)

// FrameCallback receives inbound frames not claimed by a synchronous waiter.
type FrameCallback func(*frame.Frame)

const (
	DefaultBaud             = 115200
	DefaultConnectTimeout   = 5 * time.Second
	DefaultResponseTimeout  = 500 * time.Millisecond
	DefaultPollInterval     = 3 * time.Second
	DefaultReconfigureDelay = 500 * time.Millisecond
)

// LegacyBaud is the factory rate older chips ship at.
const LegacyBaud = 9600

const sendQueueSize = 64

type Options struct {
	Baud        int   // nominal operating rate
	LegacyBauds []int // fallback probe rates, tried in order; nil means the legacy default
	Address     byte

	ConnectTimeout   time.Duration // bound on the whole rate walk
	ResponseTimeout  time.Duration // per synchronous request
	PollInterval     time.Duration // background status poll period
	ReconfigureDelay time.Duration // chip reboot wait after a rate change

	Opener Opener
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Baud <= 0 {
		out.Baud = DefaultBaud
	}
	if out.LegacyBauds == nil {
		out.LegacyBauds = []int{LegacyBaud}
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	if out.ResponseTimeout <= 0 {
		out.ResponseTimeout = DefaultResponseTimeout
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.ReconfigureDelay <= 0 {
		out.ReconfigureDelay = DefaultReconfigureDelay
	}
	if out.Opener == nil {
		out.Opener = Open
	}
	return out
}

// session is one open port generation: the port itself, the async send
// queue, and channels winding its goroutines down. done closes when the
// read loop exits for any reason.
type session struct {
	port  Port
	baud  int
	sendQ chan []byte
	stop  chan struct{}
	done  chan struct{}
}

type pendingRequest struct {
	cmd byte
	ch  chan *frame.Frame
}

type Conn struct {
	opts Options

	mu          sync.Mutex // guards the fields below
	state       State
	sess        *session
	portName    string
	lastContact time.Time
	indicators  command.Indicators
	target      bool
	version     byte
	pollStop    chan struct{}

	syncMu  sync.Mutex // one outstanding synchronous request
	writeMu sync.Mutex // exclusive writer over sync and async paths

	pendingMu sync.Mutex
	pending   *pendingRequest

	cbMu     sync.Mutex
	eventCbs []EventCallback
	frameCbs []FrameCallback
}

func New(opts *Options) *Conn {
	return &Conn{opts: opts.withDefaults()}
}

// OnEvent registers a lifecycle event callback. Not removable; register
// before Connect.
func (c *Conn) OnEvent(cb EventCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.eventCbs = append(c.eventCbs, cb)
}

// OnFrame registers a callback for unsolicited inbound frames.
func (c *Conn) OnFrame(cb FrameCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.frameCbs = append(c.frameCbs, cb)
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) PortName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.portName
}

func (c *Conn) Baud() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.baud
}

// Indicators is the last lock-key state seen from the target.
func (c *Conn) Indicators() command.Indicators {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indicators
}

func (c *Conn) TargetConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// IsReady reports whether the link is connected and has heard from the
// chip within the freshness window.
func (c *Conn) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return false
	}
	return time.Since(c.lastContact) <= c.opts.PollInterval+c.opts.ResponseTimeout
}

// Connect opens portPath and walks the configured rates until the chip
// answers. Answering at a non-nominal rate triggers a reconfiguration to
// the nominal rate and a reopen. The whole walk is bounded by the connect
// timeout.
func (c *Conn) Connect(portPath string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state, port := c.state, c.portName
		c.mu.Unlock()
		return fmt.Errorf("conn: %s: already %s", port, state)
	}
	c.state = StateConnecting
	c.portName = portPath
	c.mu.Unlock()

	deadline := time.Now().Add(c.opts.ConnectTimeout)
	rates := c.probeRates()

	for i, rate := range rates {
		if i > 0 {
			c.setState(StateBaudProbing)
		}

		sess, err := c.open(portPath, rate)
		if err != nil {
			c.abortConnect()
			return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, portPath, err)
		}

		info, err := c.probe(sess, deadline)
		if err != nil {
			c.drop(sess)
			if time.Now().Before(deadline) {
				continue
			}
			break
		}

		if rate != c.opts.Baud {
			l.Info().Printf("%s answered at %d baud, moving to %d", portPath, rate, c.opts.Baud)
			sess, info, err = c.reconfigure(sess, portPath, deadline)
			if err != nil {
				c.abortConnect()
				return err
			}
		}

		c.adopt(sess, info)
		return nil
	}

	c.abortConnect()
	return fmt.Errorf("%w: %s did not answer at %v baud", ErrConnectTimeout, portPath, rates)
}

// Disconnect tears the link down. Safe to call at any time, in any state;
// an outstanding synchronous waiter fails with ErrConnectionClosed.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	if s == nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return nil
	}
	c.sess = nil
	c.state = StateDisconnected
	port := c.portName
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
	c.mu.Unlock()

	close(s.stop)
	err := s.port.Close()
	<-s.done

	l.Info().Println("disconnected from", port)
	c.emit(Event{Type: EventDisconnected, Port: port})
	return err
}

// SendSync transmits f and blocks for the matching response. One request
// may be in flight at a time; later callers queue on the internal lock.
// A non-positive timeout uses the configured response timeout.
func (c *Conn) SendSync(f *frame.Frame, timeout time.Duration) (*frame.Frame, error) {
	data, err := f.Encode()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.opts.ResponseTimeout
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotConnected
	}

	p := &pendingRequest{cmd: f.Command, ch: make(chan *frame.Frame, 1)}
	c.pendingMu.Lock()
	c.pending = p
	c.pendingMu.Unlock()

	if err := c.write(s, data); err != nil {
		c.clearPending(p)
		return nil, err
	}

	select {
	case resp := <-p.ch:
		return resp, nil
	case <-time.After(timeout):
		c.clearPending(p)
		return nil, fmt.Errorf("%w: %02X after %v", ErrResponseTimeout, f.Command, timeout)
	case <-s.done:
		c.clearPending(p)
		return nil, ErrConnectionClosed
	}
}

// SendAsync enqueues f for transmission without waiting. Frames drain in
// FIFO order through a dedicated sender.
func (c *Conn) SendAsync(f *frame.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}

	select {
	case <-s.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case s.sendQ <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Conn) probeRates() []int {
	rates := make([]int, 0, 1+len(c.opts.LegacyBauds))
	rates = append(rates, c.opts.Baud)
	for _, b := range c.opts.LegacyBauds {
		if b > 0 && !slices.Contains(rates, b) {
			rates = append(rates, b)
		}
	}
	return rates
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) abortConnect() {
	c.setState(StateDisconnected)
}

func (c *Conn) open(path string, baud int) (*session, error) {
	port, err := c.opts.Opener(path, baud)
	if err != nil {
		return nil, err
	}
	s := &session{
		port:  port,
		baud:  baud,
		sendQ: make(chan []byte, sendQueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
	go c.readLoop(s)
	go c.senderLoop(s)
	return s, nil
}

// drop closes a session without lifecycle events, for rate walking.
func (c *Conn) drop(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	close(s.stop)
	_ = s.port.Close()
	<-s.done
}

// probe asks the chip for its info block, retrying once inside the
// connect deadline.
func (c *Conn) probe(s *session, deadline time.Time) (*command.ChipInfo, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if time.Now().After(deadline) {
			break
		}
		f, err := c.request("get-info", nil, c.opts.ResponseTimeout)
		if err != nil {
			if errors.Is(err, ErrResponseTimeout) {
				continue
			}
			return nil, err
		}
		info, err := command.ParseInfo(f.Payload)
		if err != nil {
			l.Warn().Println("probe:", err)
			continue
		}
		return info, nil
	}
	return nil, ErrResponseTimeout
}

// reconfigure moves a chip answering at a legacy rate to the nominal rate:
// write the parameter block, reset the chip, reopen, verify.
func (c *Conn) reconfigure(s *session, path string, deadline time.Time) (*session, *command.ChipInfo, error) {
	f, err := c.request("set-parameter-config", command.BuildParaCfg(c.opts.Address, uint32(c.opts.Baud)), c.opts.ResponseTimeout)
	if err == nil {
		err = command.CheckAck(f)
	}
	if err != nil {
		c.drop(s)
		return nil, nil, fmt.Errorf("conn: apply %d baud: %w", c.opts.Baud, err)
	}

	// the new rate only takes effect once the chip restarts
	if _, err = c.request("reset", nil, c.opts.ResponseTimeout); err != nil {
		l.Warn().Println("reset after rate change:", err)
	}
	c.drop(s)
	time.Sleep(c.opts.ReconfigureDelay)

	s, err = c.open(path, c.opts.Baud)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, path, err)
	}
	info, err := c.probe(s, deadline)
	if err != nil {
		c.drop(s)
		return nil, nil, fmt.Errorf("%w: %s silent after moving to %d baud", ErrConnectTimeout, path, c.opts.Baud)
	}
	return s, info, nil
}

func (c *Conn) adopt(s *session, info *command.ChipInfo) {
	c.mu.Lock()
	c.state = StateConnected
	c.lastContact = time.Now()
	c.version = info.Version
	c.target = info.TargetConnected
	c.indicators = info.Indicators
	stop := make(chan struct{})
	c.pollStop = stop
	port := c.portName
	c.mu.Unlock()

	go c.pollLoop(s, stop)

	l.Info().Printf("connected to %s at %d baud, chip version %s", port, s.baud, info.VersionString())
	c.emit(Event{Type: EventConnected, Port: port, Baud: s.baud, Indicators: info.Indicators})
}

func (c *Conn) readLoop(s *session) {
	defer close(s.done)
	var data []byte
	buf := make([]byte, 1024)
	for {
		n, err := s.port.Read(buf)
		if err != nil || n == 0 {
			c.sessionEnded(s, err)
			return
		}
		data = append(data, buf[:n]...)
		for {
			f, consumed, err := frame.Scan(data)
			data = data[consumed:]
			if f != nil {
				l.Verbose().Println("<", f)
				c.dispatch(f)
				continue
			}
			if errors.Is(err, frame.ErrChecksum) {
				l.Warn().Println("dropping corrupt frame bytes")
				continue
			}
			break
		}
	}
}

func (c *Conn) senderLoop(s *session) {
	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case data := <-s.sendQ:
			if err := c.write(s, data); err != nil {
				l.Error().Println("async write:", err)
			}
		}
	}
}

// pollLoop keeps the freshness window alive and picks up lock-key changes.
func (c *Conn) pollLoop(s *session, stop chan struct{}) {
	poll, err := command.Build("get-info", nil)
	if err != nil {
		return
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := c.SendAsync(poll); err != nil {
				l.Verbose().Println("status poll:", err)
			}
		}
	}
}

func (c *Conn) write(s *session, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := s.port.Write(data); err != nil {
		return fmt.Errorf("conn: write: %w", err)
	}
	if err := s.port.Drain(); err != nil {
		return fmt.Errorf("conn: drain: %w", err)
	}
	return nil
}

// dispatch routes one inbound frame: refresh the freshness window, fold
// chip info into local state, then hand the frame to the synchronous
// waiter or the async frame callbacks.
func (c *Conn) dispatch(f *frame.Frame) {
	c.mu.Lock()
	c.lastContact = time.Now()
	c.mu.Unlock()

	if command.RespondsTo(command.CodeGetInfo, f.Command) {
		if info, err := command.ParseInfo(f.Payload); err == nil {
			c.noteInfo(info)
		}
	}

	c.pendingMu.Lock()
	if p := c.pending; p != nil && command.RespondsTo(p.cmd, f.Command) {
		c.pending = nil
		c.pendingMu.Unlock()
		p.ch <- f
		return
	}
	c.pendingMu.Unlock()

	c.cbMu.Lock()
	cbs := slices.Clone(c.frameCbs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.Error().Println("frame callback panic:", r)
				}
			}()
			cb(f)
		}()
	}
}

func (c *Conn) noteInfo(info *command.ChipInfo) {
	c.mu.Lock()
	changed := c.indicators != info.Indicators
	c.indicators = info.Indicators
	c.target = info.TargetConnected
	c.version = info.Version
	connected := c.state == StateConnected
	port := c.portName
	c.mu.Unlock()

	if changed && connected {
		c.emit(Event{Type: EventIndicators, Port: port, Indicators: info.Indicators})
	}
}

func (c *Conn) sessionEnded(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		// closed deliberately, nothing to report
		c.mu.Unlock()
		return
	}
	c.sess = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	port := c.portName
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
	c.mu.Unlock()

	_ = s.port.Close()

	if wasConnected {
		msg := "port closed"
		if err != nil {
			msg = err.Error()
		}
		l.Error().Printf("connection to %s lost: %s", port, msg)
		c.emit(Event{Type: EventConnectionLost, Port: port, Message: msg})
	}
}

func (c *Conn) clearPending(p *pendingRequest) {
	c.pendingMu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.pendingMu.Unlock()
}

func (c *Conn) emit(e Event) {
	c.cbMu.Lock()
	cbs := slices.Clone(c.eventCbs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.Error().Println("event callback panic:", r)
				}
			}()
			cb(e)
		}()
	}
}
