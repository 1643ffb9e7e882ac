// Package logging builds the logrus logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalidFormat is returned for an unknown output format.
var ErrInvalidFormat = errors.New("invalid log format")

// Options configures a logger.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Format is text or json. Empty means text.
	Format string

	// Output defaults to stderr.
	Output io.Writer
}

// New creates a logger that writes to opts.Output with the minimum level.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	if err := SetLevel(l, opts.Level); err != nil {
		return nil, err
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case FormatJSON:
		l.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, errors.Wrapf(ErrInvalidFormat, "%q", opts.Format)
	}

	l.Out = opts.Output
	if l.Out == nil {
		l.Out = os.Stderr
	}
	return l, nil
}

// SetLevel changes the minimum level of l. An empty level means info.
func SetLevel(l *logrus.Logger, level string) error {
	if level == "" {
		l.SetLevel(logrus.InfoLevel)
		return nil
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	l.SetLevel(parsed)
	return nil
}

// Component returns an entry tagging every line with the component name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
