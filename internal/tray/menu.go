package tray

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"linuxmacro/internal/protocol"
)

// Executor runs a command line.
type Executor func(ctx context.Context, line string) (protocol.Status, error)

// Menu is the recorder menu: a status label, one item per command and Quit.
// Record and Play carry a checkmark while active.
type Menu struct {
	tray   *Tray
	exec   Executor
	log    *logrus.Entry
	status int
	record int
	play   int
}

// NewMenu builds the recorder menu on a new tray. onQuit is called from the
// tray goroutine when Quit is clicked.
func NewMenu(exec Executor, onQuit func(), log *logrus.Entry) *Menu {
	m := &Menu{
		tray: New("", "Input macro recorder", log),
		exec: exec,
		log:  log,
	}
	t := m.tray
	m.status = t.AddLabel(view(protocol.Status{State: "idle"}).label)
	t.AddSeparator()
	m.record = t.AddMenuItem("Record", m.command(protocol.CmdRecord, protocol.CmdStopRecording, &m.record))
	m.play = t.AddMenuItem("Play", m.command(protocol.CmdPlay, protocol.CmdStopPlaying, &m.play))
	t.AddMenuItem("Stop", m.run(protocol.CmdStop))
	t.AddMenuItem("Reset", m.run(protocol.CmdReset))
	t.AddMenuItem("Clear", m.run(protocol.CmdClear))
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		if onQuit != nil {
			onQuit()
		}
		t.Stop()
	})
	return m
}

// Run blocks in the tray event loop.
func (m *Menu) Run(onExit func()) {
	m.tray.Run(onExit)
}

// Stop ends the tray event loop.
func (m *Menu) Stop() {
	m.tray.Stop()
}

// Update reflects st in the label, checkmarks and tooltip.
func (m *Menu) Update(st protocol.Status) {
	v := view(st)
	m.tray.SetItemTitle(m.status, v.label)
	m.tray.SetItemChecked(m.record, v.recording)
	m.tray.SetItemChecked(m.play, v.playing)
	m.tray.SetTooltip(v.label)
}

// command toggles between start and stop depending on the checkmark.
func (m *Menu) command(start, stop string, id *int) func() {
	return func() {
		line := start
		m.tray.mu.Lock()
		if mi := m.tray.lookup(*id); mi != nil && mi.checked {
			line = stop
		}
		m.tray.mu.Unlock()
		m.send(line)
	}
}

func (m *Menu) run(line string) func() {
	return func() { m.send(line) }
}

func (m *Menu) send(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.exec(ctx, line); err != nil {
		m.log.WithError(err).WithField("command", line).Warn("Menu command failed")
	}
}

type menuView struct {
	label     string
	recording bool
	playing   bool
}

func view(st protocol.Status) menuView {
	return menuView{
		label:     st.String(),
		recording: st.State == "recording",
		playing:   st.State == "playing",
	}
}
