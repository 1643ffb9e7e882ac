// Package remote sends command lines to a running recorder over its
// websocket API.
package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/protocol"
)

// ErrRejected wraps an error message reported by the server.
var ErrRejected = errors.New("command rejected")

// Client handles WebSocket connections to a running recorder
type Client struct {
	hostAddr string
	token    string
	log      *logrus.Entry
	dialer   *websocket.Dialer
}

// NewClient creates a client for the server at hostAddr ("host:port").
func NewClient(hostAddr, token string, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.WithField("component", "remote")
	}
	return &Client{
		hostAddr: hostAddr,
		token:    token,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// Send runs line on the server and returns the status it replied with.
func (c *Client) Send(ctx context.Context, line string) (protocol.Status, error) {
	if _, err := protocol.ParseCommand(line); err != nil {
		return protocol.Status{}, err
	}

	u := url.URL{Scheme: "ws", Host: c.hostAddr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Debugf("Connecting to %s", u.String())
	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return protocol.Status{}, errors.Wrapf(err, "connect to %s", c.hostAddr)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	msg, err := protocol.NewMessage(protocol.TypeCommand, protocol.CommandPayload{Line: line})
	if err != nil {
		return protocol.Status{}, err
	}
	msg.ID = uuid.NewString()
	if err := conn.WriteJSON(msg); err != nil {
		return protocol.Status{}, errors.Wrap(err, "send command")
	}

	for {
		var in protocol.Message
		if err := conn.ReadJSON(&in); err != nil {
			return protocol.Status{}, errors.Wrap(err, "read reply")
		}
		if in.ID != msg.ID {
			// greeting or broadcast
			continue
		}

		switch in.Type {
		case protocol.TypeStatus:
			var st protocol.Status
			return st, in.Decode(&st)
		case protocol.TypeError:
			var e protocol.ErrorPayload
			if err := in.Decode(&e); err != nil {
				return protocol.Status{}, err
			}
			return e.Status, errors.Wrap(ErrRejected, e.Message)
		default:
			return protocol.Status{}, errors.Errorf("unexpected reply type %q", in.Type)
		}
	}
}
