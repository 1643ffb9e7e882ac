// Package host drives an engine session from a single goroutine and turns
// named commands from the front-ends into session transitions.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/macro"
	"linuxmacro/internal/macrofile"
	"linuxmacro/internal/protocol"
)

// ErrStopped is returned by Execute once Run has returned.
var ErrStopped = errors.New("host stopped")

// Opener opens the device named by a path argument of the load command.
type Opener func(path string) (engine.Device, error)

// Options configures a Host.
type Options struct {
	Session      *engine.Session
	TickInterval time.Duration
	Open         Opener
	Logger       *logrus.Entry
}

// maxBurst bounds the session ticks run in one loop cycle.
const maxBurst = 512

// Host owns the session and its tick loop
type Host struct {
	mu       sync.Mutex
	session  *engine.Session
	interval time.Duration
	open     Opener
	log      *logrus.Entry

	// changed is set by the session's state callback. Loop goroutine only.
	changed bool

	cmds chan request
	done chan struct{}

	// Callbacks for front-end notifications
	onStatus func(protocol.Status)
}

type request struct {
	fn    func() error
	reply chan result
}

type result struct {
	status protocol.Status
	err    error
}

// New creates a host. Run must be called for commands to be served.
func New(opts Options) *Host {
	log := opts.Logger
	if log == nil {
		log = logrus.WithField("component", "host")
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	h := &Host{
		session:  opts.Session,
		interval: interval,
		open:     opts.Open,
		log:      log,
		cmds:     make(chan request),
		done:     make(chan struct{}),
	}
	h.session.SetOnStateChange(func(engine.State) { h.changed = true })
	return h
}

// SetOnStatus sets the callback fired from the loop after every command,
// state change and tick error. The callback must not call Execute.
func (h *Host) SetOnStatus(callback func(protocol.Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStatus = callback
}

// Run ticks the session until ctx is done, serving queued commands between
// ticks. The attached device is closed on return.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	defer func() {
		if err := h.session.Close(); err != nil {
			h.log.WithError(err).Warn("Failed to close device")
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.WithField("interval", h.interval).Info("Loop started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("Loop stopped")
			return ctx.Err()

		case req := <-h.cmds:
			h.serve(req)

		case <-ticker.C:
			h.drain()
			h.tick()
		}
	}
}

func (h *Host) drain() {
	for {
		select {
		case req := <-h.cmds:
			h.serve(req)
		default:
			return
		}
	}
}

func (h *Host) serve(req request) {
	err := req.fn()
	h.changed = false
	if err != nil {
		h.log.WithError(err).Warn("Command failed")
	}
	st := h.status()
	h.notify(st)
	req.reply <- result{status: st, err: err}
}

// tick runs session ticks for one loop cycle. While recording it keeps
// reading as long as the source has events queued. While playing it keeps
// emitting, and sleeps for the next event when it falls due within the
// cycle, so a batch that arrived together is replayed together. The burst
// ends on a state change and never runs past one interval.
func (h *Host) tick() {
	s := h.session
	h.changed = false
	start := time.Now()
	for i := 0; i < maxBurst; i++ {
		progressed := h.step(s)
		if h.changed {
			break
		}
		if !progressed {
			wait, ok := s.PlaybackWait()
			if !ok || time.Since(start)+wait >= h.interval {
				break
			}
			time.Sleep(wait)
		}
		if time.Since(start) >= h.interval {
			break
		}
	}
	if h.changed {
		h.changed = false
		h.notify(h.status())
	}
}

// step runs a single session tick and reports whether it made progress.
func (h *Host) step(s *engine.Session) bool {
	state := s.State()
	length := s.SequenceLength()
	pos, set := s.CursorPosition()

	if err := s.Tick(); err != nil {
		return false
	}
	switch state {
	case engine.Recording:
		return s.SequenceLength() != length
	case engine.Playing:
		newPos, newSet := s.CursorPosition()
		return newPos != pos || newSet != set
	}
	return false
}

func (h *Host) notify(st protocol.Status) {
	h.mu.Lock()
	fn := h.onStatus
	h.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (h *Host) status() protocol.Status {
	s := h.session
	st := protocol.Status{
		State:   s.State().String(),
		Length:  s.SequenceLength(),
		Device:  s.DeviceName(),
		Skipped: s.Skipped(),
	}
	if pos, ok := s.CursorPosition(); ok {
		st.Cursor = &pos
	}
	if err := s.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// run executes fn on the loop goroutine and returns the status after it.
func (h *Host) run(ctx context.Context, fn func() error) (protocol.Status, error) {
	req := request{fn: fn, reply: make(chan result, 1)}
	select {
	case h.cmds <- req:
	case <-ctx.Done():
		return protocol.Status{}, ctx.Err()
	case <-h.done:
		return protocol.Status{}, ErrStopped
	}
	res := <-req.reply
	return res.status, res.err
}

// ExecuteLine parses and executes a command line.
func (h *Host) ExecuteLine(ctx context.Context, line string) (protocol.Status, error) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.Status{}, err
	}
	return h.Execute(ctx, cmd)
}

// Execute runs cmd on the loop and waits for it. The returned status
// reflects the session after the command, also when it failed.
func (h *Host) Execute(ctx context.Context, cmd protocol.Command) (protocol.Status, error) {
	if err := cmd.Validate(); err != nil {
		return protocol.Status{}, err
	}
	s := h.session
	h.log.WithField("command", cmd.String()).Debug("Executing")

	switch cmd.Name {
	case protocol.CmdRecord:
		return h.run(ctx, s.StartRecording)
	case protocol.CmdStopRecording:
		return h.run(ctx, s.StopRecording)
	case protocol.CmdPlay:
		return h.run(ctx, s.StartPlaying)
	case protocol.CmdStopPlaying:
		return h.run(ctx, s.StopPlaying)
	case protocol.CmdStop:
		return h.run(ctx, func() error {
			switch s.State() {
			case engine.Recording:
				return s.StopRecording()
			case engine.Playing:
				return s.StopPlaying()
			}
			return nil
		})
	case protocol.CmdClear:
		return h.run(ctx, s.Clear)
	case protocol.CmdReset:
		return h.run(ctx, s.Reset)
	case protocol.CmdStatus:
		return h.run(ctx, func() error { return nil })
	case protocol.CmdLoad:
		return h.load(ctx, cmd.Arg(0))
	case protocol.CmdSave:
		return h.save(ctx, cmd.Arg(0))
	case protocol.CmdOpen:
		return h.openFile(ctx, cmd.Arg(0))
	}
	return protocol.Status{}, errors.Wrapf(protocol.ErrBadCommand, "unhandled command %q", cmd.Name)
}

// load opens the device off the loop, then swaps it in.
func (h *Host) load(ctx context.Context, path string) (protocol.Status, error) {
	if h.open == nil {
		return h.run(ctx, func() error {
			return errors.Wrap(engine.ErrDeviceUnavailable, "no device opener configured")
		})
	}
	dev, err := h.open(path)
	if err != nil {
		return h.run(ctx, func() error { return err })
	}
	st, err := h.run(ctx, func() error { return h.session.LoadDevice(dev) })
	if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cerr := dev.Close(); cerr != nil {
			h.log.WithError(cerr).WithField("device", dev.Name()).Warn("Failed to close device")
		}
	}
	return st, err
}

func (h *Host) save(ctx context.Context, path string) (protocol.Status, error) {
	var (
		events []macro.Event
		device string
	)
	st, err := h.run(ctx, func() error {
		events = h.session.Snapshot()
		device = h.session.DeviceName()
		return nil
	})
	if err != nil {
		return st, err
	}
	if err := macrofile.WriteFile(path, macrofile.New(device, events)); err != nil {
		return st, err
	}
	h.log.WithFields(logrus.Fields{"file": path, "events": len(events)}).Info("Sequence saved")
	return st, nil
}

func (h *Host) openFile(ctx context.Context, path string) (protocol.Status, error) {
	f, err := macrofile.ReadFile(path)
	if err != nil {
		return h.run(ctx, func() error { return err })
	}
	events, err := f.Sequence()
	if err != nil {
		return h.run(ctx, func() error { return err })
	}
	st, err := h.run(ctx, func() error { return h.session.LoadSequence(events) })
	if err == nil {
		h.log.WithFields(logrus.Fields{"file": path, "id": f.ID, "events": len(events)}).Info("Sequence loaded")
	}
	return st, err
}
