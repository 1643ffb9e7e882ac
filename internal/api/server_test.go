package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/protocol"
)

type fakeController struct {
	mu    sync.Mutex
	lines []string
	state string
}

func (c *fakeController) ExecuteLine(ctx context.Context, line string) (protocol.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.Status{}, err
	}
	switch cmd.Name {
	case protocol.CmdRecord:
		return protocol.Status{State: "idle"}, errors.Wrap(engine.ErrDeviceUnavailable, "start recording")
	case protocol.CmdPlay:
		c.state = "playing"
	}
	if c.state == "" {
		c.state = "idle"
	}
	return protocol.Status{State: c.state, Length: 2}, nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthSkipsAuth(t *testing.T) {
	s := NewServer(&fakeController{}, "secret", quietLogger())
	rec := do(t, s.Handler(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	s := NewServer(&fakeController{}, "secret", quietLogger())
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "", "secret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status?token=secret", "", "").Code)
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer(ctrl, "", quietLogger())

	rec := do(t, s.Handler(), http.MethodGet, "/api/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st protocol.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, []string{"status"}, ctrl.lines)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Handler(), http.MethodPost, "/api/status", "", "").Code)
}

func TestCommand(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", quietLogger()).Handler()

	rec := do(t, h, http.MethodPost, "/api/command", `{"line":"play"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st protocol.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "playing", st.State)

	rec = do(t, h, http.MethodPost, "/api/command", `{"line":"jump"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/command", `{"line":"record"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var e protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Contains(t, e.Message, "device unavailable")
	assert.Equal(t, "idle", e.Status.State)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/command", `not json`, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/command", "", "").Code)
}

type panicController struct{}

func (panicController) ExecuteLine(context.Context, string) (protocol.Status, error) {
	panic("boom")
}

func TestRecoverMiddleware(t *testing.T) {
	h := NewServer(panicController{}, "", quietLogger()).Handler()
	rec := do(t, h, http.MethodGet, "/api/status", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func startServer(t *testing.T, ctrl Controller) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(ctrl, "", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, "ws://" + ln.Addr().String() + "/ws"
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketCommand(t *testing.T) {
	_, url := startServer(t, &fakeController{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	greeting := readMessage(t, conn)
	assert.Equal(t, protocol.TypeStatus, greeting.Type)
	assert.Empty(t, greeting.ID)

	msg, err := protocol.NewMessage(protocol.TypeCommand, protocol.CommandPayload{Line: "play"})
	require.NoError(t, err)
	msg.ID = "one"
	require.NoError(t, conn.WriteJSON(msg))

	reply := readMessage(t, conn)
	require.Equal(t, protocol.TypeStatus, reply.Type)
	assert.Equal(t, "one", reply.ID)
	var st protocol.Status
	require.NoError(t, reply.Decode(&st))
	assert.Equal(t, "playing", st.State)

	msg, err = protocol.NewMessage(protocol.TypeCommand, protocol.CommandPayload{Line: "record"})
	require.NoError(t, err)
	msg.ID = "two"
	require.NoError(t, conn.WriteJSON(msg))

	reply = readMessage(t, conn)
	require.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, "two", reply.ID)
	var e protocol.ErrorPayload
	require.NoError(t, reply.Decode(&e))
	assert.Contains(t, e.Message, "device unavailable")
}

func TestWebSocketBroadcast(t *testing.T) {
	s, url := startServer(t, &fakeController{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	s.BroadcastStatus(protocol.Status{State: "recording", Length: 7})

	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeStatus, msg.Type)
	var st protocol.Status
	require.NoError(t, msg.Decode(&st))
	assert.Equal(t, "recording", st.State)
	assert.Equal(t, 7, st.Length)
}
