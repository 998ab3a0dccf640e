package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testNamespace = "/books"

// script drives the server side of a websocket conversation.
type script func(t *testing.T, c *websocket.Conn)

// fakeServer answers the polling bootstrap with sid and hands the upgraded
// websocket to the script.
type fakeServer struct {
	t          *testing.T
	pollStatus int
	pollBody   string
	script     script

	mu      sync.Mutex
	queries []url.Values
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query())
	f.mu.Unlock()

	switch r.URL.Query().Get("transport") {
	case "polling":
		if f.pollStatus != 0 {
			w.WriteHeader(f.pollStatus)
		}
		_, _ = io.WriteString(w, f.pollBody)
	case "websocket":
		up := websocket.Upgrader{}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			f.t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		if f.script != nil {
			f.script(f.t, c)
		}
	default:
		http.Error(w, "bad transport", http.StatusBadRequest)
	}
}

func (f *fakeServer) recorded() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries...)
}

func newFakeServer(t *testing.T, s script) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{
		t:        t,
		pollBody: `0{"sid":"abc123","upgrades":["websocket"],"pingInterval":25000,"pingTimeout":20000}`,
		script:   s,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func expectFrame(t *testing.T, c *websocket.Conn, want string) {
	t.Helper()
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Errorf("server read (want %q): %v", want, err)
		return
	}
	if string(data) != want {
		t.Errorf("server got %q, want %q", data, want)
	}
}

func sendFrame(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Errorf("server write %q: %v", frame, err)
	}
}

// waitClose blocks until the client hangs up.
func waitClose(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func testOptions(srv *httptest.Server) Options {
	return Options{
		URL:       srv.URL + "/socket.io/",
		Namespace: testNamespace,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDial_ReachesReady(t *testing.T) {
	t.Parallel()

	_, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
		expectFrame(t, c, "2probe")
		sendFrame(t, c, "3probe")
		expectFrame(t, c, "5")
		expectFrame(t, c, "40/books,")
		sendFrame(t, c, "40/books,")
		sendFrame(t, c, "2")
		expectFrame(t, c, "3")
		sendFrame(t, c, `42/books,["ready"]`)
		waitClose(c)
	})

	s, err := Dial(testContext(t), testOptions(srv), Auth{Token: "key"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer s.Close()

	if got := s.State(); got != StateReady {
		t.Errorf("State() = %s, want ready", got)
	}
	if got := s.ID(); got != "abc123" {
		t.Errorf("ID() = %q, want abc123", got)
	}
}

// stateRecorder collects the states a session passes through.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(st State) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) got() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestDial_StateOrder(t *testing.T) {
	t.Parallel()

	t.Run("handshake", func(t *testing.T) {
		t.Parallel()

		_, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
			expectFrame(t, c, "2probe")
			sendFrame(t, c, "3probe")
			expectFrame(t, c, "5")
			expectFrame(t, c, "40/books,")
			sendFrame(t, c, "40/books,")
			sendFrame(t, c, `42/books,["ready"]`)
			waitClose(c)
		})

		var rec stateRecorder
		opts := testOptions(srv)
		opts.OnState = rec.record

		s, err := Dial(testContext(t), opts, Auth{Token: "key"})
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer s.Close()

		assertStates(t, rec.got(), StatePolled, StateUpgrading, StateJoined, StateReady)
	})

	t.Run("channel open fails while upgrading", func(t *testing.T) {
		t.Parallel()

		_, srv := newFakeServer(t, nil)
		var rec stateRecorder
		opts := testOptions(srv)
		opts.OnState = rec.record
		opts.Dialer = &websocket.Dialer{
			NetDialContext: func(context.Context, string, string) (net.Conn, error) {
				return nil, errors.New("connection refused")
			},
		}

		if _, err := Dial(testContext(t), opts, Auth{Token: "key"}); !errors.Is(err, ErrChannelOpen) {
			t.Fatalf("Dial() error = %v, want ErrChannelOpen", err)
		}
		assertStates(t, rec.got(), StatePolled, StateUpgrading, StateFailed)
	})
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestDial_ToleratesConfirmationMismatch(t *testing.T) {
	t.Parallel()

	_, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
		expectFrame(t, c, "2probe")
		sendFrame(t, c, "3huh")
		expectFrame(t, c, "5")
		expectFrame(t, c, "40/books,")
		sendFrame(t, c, "40/elsewhere,")
		sendFrame(t, c, `42/books,["welcome"]`)
		waitClose(c)
	})

	s, err := Dial(testContext(t), testOptions(srv), Auth{Token: "key"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer s.Close()

	if got := s.State(); got != StateReady {
		t.Errorf("State() = %s, want ready", got)
	}
}

func TestDial_SendsSessionQuery(t *testing.T) {
	t.Parallel()

	f, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
		expectFrame(t, c, "2probe")
		sendFrame(t, c, "3probe")
		expectFrame(t, c, "5")
		expectFrame(t, c, "40/books,")
		sendFrame(t, c, "40/books,")
		sendFrame(t, c, `42/books,["ready"]`)
		waitClose(c)
	})

	s, err := Dial(testContext(t), testOptions(srv), Auth{Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	_ = s.Close()

	qs := f.recorded()
	if len(qs) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(qs))
	}

	poll, ws := qs[0], qs[1]
	for _, q := range qs {
		if q.Get("apiKey") != "secret" || q.Get("isServer") != "0" || q.Get("EIO") != "4" {
			t.Errorf("common params = %v", q)
		}
	}
	if poll.Get("transport") != "polling" || poll.Get("t") == "" {
		t.Errorf("polling params = %v", poll)
	}
	if ws.Get("transport") != "websocket" || ws.Get("sid") != "abc123" {
		t.Errorf("websocket params = %v", ws)
	}
}

func TestDial_BootstrapFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrPollStatus},
		{"forbidden", http.StatusForbidden, "", ErrPollStatus},
		{"no sid", http.StatusOK, `0{"upgrades":[]}`, ErrNoSessionID},
		{"not json", http.StatusOK, "0nope", ErrNoSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, srv := newFakeServer(t, nil)
			f.pollStatus = tt.status
			f.pollBody = tt.body

			s, err := Dial(testContext(t), testOptions(srv), Auth{Token: "key"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Dial() error = %v, want %v", err, tt.wantErr)
			}
			if got := s.State(); got != StateFailed {
				t.Errorf("State() = %s, want failed", got)
			}
			if n := len(f.recorded()); n != 1 {
				t.Errorf("server saw %d requests, want only the bootstrap", n)
			}
		})
	}
}

func TestDial_ChannelClosedDuringHandshake(t *testing.T) {
	t.Parallel()

	_, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
		expectFrame(t, c, "2probe")
	})

	s, err := Dial(testContext(t), testOptions(srv), Auth{Token: "key"})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("Dial() error = %v, want ErrHandshake", err)
	}
	if got := s.State(); got != StateFailed {
		t.Errorf("State() = %s, want failed", got)
	}
	if err := s.Send(testContext(t), "2"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after failure = %v, want ErrClosed", err)
	}
}

func TestSession_SendReceiveAndClose(t *testing.T) {
	t.Parallel()

	_, srv := newFakeServer(t, func(t *testing.T, c *websocket.Conn) {
		expectFrame(t, c, "2probe")
		sendFrame(t, c, "3probe")
		expectFrame(t, c, "5")
		expectFrame(t, c, "40/books,")
		sendFrame(t, c, "40/books,")
		sendFrame(t, c, `42/books,["ready"]`)
		expectFrame(t, c, "hello")
		sendFrame(t, c, "2")
		waitClose(c)
	})

	ctx := testContext(t)
	s, err := Dial(ctx, testOptions(srv), Auth{Token: "key"})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if err := s.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	got, err := s.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if got != "2" || !IsHeartbeat(got) {
		t.Errorf("Receive() = %q, want raw heartbeat", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if st := s.State(); st != StateClosed {
		t.Errorf("State() = %s, want closed", st)
	}
	if _, err := s.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after close = %v, want ErrClosed", err)
	}
}

func TestParseOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantSID string
		wantErr error
	}{
		{"open packet", `0{"sid":"s1"}`, "s1", nil},
		{"length prefixed", `15:0{"sid":"s2"}`, "s2", nil},
		{"empty sid", `0{"sid":""}`, "", ErrNoSessionID},
		{"empty body", "", "", ErrNoSessionID},
		{"garbage", "0<html>", "", ErrNoSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			open, err := parseOpen(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseOpen(%q) error = %v, want %v", tt.body, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOpen(%q) error: %v", tt.body, err)
			}
			if open.SID != tt.wantSID {
				t.Errorf("sid = %q, want %q", open.SID, tt.wantSID)
			}
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"https://libra.example/socket.io/", "wss://libra.example/socket.io/", false},
		{"http://127.0.0.1:8080/socket.io/", "ws://127.0.0.1:8080/socket.io/", false},
		{"ftp://x/", "", true},
	}
	for _, tt := range tests {
		u, err := websocketURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("websocketURL(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || u.String() != tt.want {
			t.Errorf("websocketURL(%q) = %v, %v; want %s", tt.in, u, err, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if StateReady.String() != "ready" || State(42).String() != "unknown" {
		t.Errorf("unexpected state names: %s %s", StateReady, State(42))
	}
}
