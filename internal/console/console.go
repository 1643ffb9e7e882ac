// Package console is the terminal front-end: single-key commands read from
// the controlling terminal in cbreak mode, and a status line per change.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/term"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/protocol"
)

// ErrQuit is returned by Run when the quit key is pressed.
var ErrQuit = errors.New("quit requested")

// Executor runs a command line.
type Executor func(ctx context.Context, line string) (protocol.Status, error)

// keySource is the non-blocking side of a terminal.
type keySource interface {
	Available() (int, error)
	Read(p []byte) (int, error)
}

const quitKey = 'q'

var bindings = map[byte]string{
	'r': protocol.CmdRecord,
	'p': protocol.CmdPlay,
	's': protocol.CmdStop,
	'x': protocol.CmdReset,
	'c': protocol.CmdClear,
}

// Binding returns the command bound to key.
func Binding(key byte) (string, bool) {
	line, ok := bindings[key]
	return line, ok
}

// Help describes the key bindings.
const Help = "keys: r record, p play, s stop, x reset, c clear, q quit"

// Console reads keys from a terminal and prints status lines.
type Console struct {
	mu   sync.Mutex
	keys keySource
	tty  *term.Term
	out  io.Writer
	log  *logrus.Entry
	poll time.Duration
	last string
}

// Open puts the controlling terminal into cbreak mode.
func Open(log *logrus.Entry) (*Console, error) {
	tty, err := term.Open("/dev/tty", term.CBreakMode)
	if err != nil {
		return nil, errors.Wrap(err, "open terminal")
	}
	c := newConsole(tty, os.Stdout, log)
	c.tty = tty
	return c, nil
}

func newConsole(keys keySource, out io.Writer, log *logrus.Entry) *Console {
	return &Console{
		keys: keys,
		out:  out,
		log:  log,
		poll: 20 * time.Millisecond,
	}
}

// Close restores the terminal.
func (c *Console) Close() error {
	if c.tty == nil {
		return nil
	}
	c.tty.Restore()
	return c.tty.Close()
}

// Run dispatches key presses to exec until ctx is done or q is pressed.
func (c *Console) Run(ctx context.Context, exec Executor) error {
	c.println(Help)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	buf := make([]byte, 16)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := c.keys.Available()
		if err != nil {
			return errors.Wrap(err, "poll terminal")
		}
		if n == 0 {
			continue
		}
		if n > len(buf) {
			n = len(buf)
		}
		n, err = c.keys.Read(buf[:n])
		if err != nil {
			return errors.Wrap(err, "read terminal")
		}

		for _, key := range buf[:n] {
			if key == quitKey {
				return ErrQuit
			}
			line, ok := Binding(key)
			if !ok {
				continue
			}
			c.log.WithField("key", string(key)).Debug("Key pressed")
			if _, err := exec(ctx, line); err != nil {
				c.println(fmt.Sprintf("%s: %v", line, err))
			}
		}
	}
}

// Update prints st when it differs from the last printed status.
func (c *Console) Update(st protocol.Status) {
	line := st.String()
	c.mu.Lock()
	if line == c.last {
		c.mu.Unlock()
		return
	}
	c.last = line
	c.mu.Unlock()
	c.println(line)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// cbreak mode leaves output post-processing on
	fmt.Fprintln(c.out, s)
}
