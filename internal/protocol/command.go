package protocol

import (
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
)

// Command names.
const (
	CmdRecord        = "record"
	CmdStop          = "stop"
	CmdStopRecording = "stop-recording"
	CmdPlay          = "play"
	CmdStopPlaying   = "stop-playing"
	CmdClear         = "clear"
	CmdReset         = "reset"
	CmdLoad          = "load"
	CmdSave          = "save"
	CmdOpen          = "open"
	CmdStatus        = "status"
)

// ErrBadCommand is returned for unknown commands and wrong argument counts.
var ErrBadCommand = errors.New("bad command")

// arity is the number of arguments each command takes.
var arity = map[string]int{
	CmdRecord:        0,
	CmdStop:          0,
	CmdStopRecording: 0,
	CmdPlay:          0,
	CmdStopPlaying:   0,
	CmdClear:         0,
	CmdReset:         0,
	CmdLoad:          1,
	CmdSave:          1,
	CmdOpen:          1,
	CmdStatus:        0,
}

// Command is a parsed command line.
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// ParseCommand splits line with shell quoting rules and checks the command
// name and argument count.
func ParseCommand(line string) (Command, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return Command{}, errors.Wrapf(ErrBadCommand, "%q: %v", line, err)
	}
	if len(words) == 0 {
		return Command{}, errors.Wrap(ErrBadCommand, "empty command")
	}
	cmd := Command{Name: strings.ToLower(words[0])}
	if len(words) > 1 {
		cmd.Args = words[1:]
	}
	return cmd, cmd.Validate()
}

// Validate checks the name and argument count.
func (c Command) Validate() error {
	n, ok := arity[c.Name]
	if !ok {
		return errors.Wrapf(ErrBadCommand, "unknown command %q, want one of: %s", c.Name, strings.Join(Names(), ", "))
	}
	if len(c.Args) != n {
		return errors.Wrapf(ErrBadCommand, "%s takes %d argument(s), got %d", c.Name, n, len(c.Args))
	}
	return nil
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String renders the command as a line ParseCommand accepts.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Names lists the known commands.
func Names() []string {
	return []string{
		CmdRecord, CmdStop, CmdStopRecording, CmdPlay, CmdStopPlaying,
		CmdClear, CmdReset, CmdLoad, CmdSave, CmdOpen, CmdStatus,
	}
}
