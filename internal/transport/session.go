// Package transport establishes the persistent channel to the remote
// renderer: an Engine.IO polling bootstrap for the session id, a websocket
// upgrade, and the Socket.IO namespace join.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/alnah/go-book2pdf/internal/wire"
)

// Sentinel errors for session establishment and use.
var (
	ErrPollStatus      = errors.New("session bootstrap returned non-2xx status")
	ErrNoSessionID     = errors.New("session bootstrap response has no sid")
	ErrChannelOpen     = errors.New("failed to open persistent channel")
	ErrHandshake       = errors.New("handshake failed")
	ErrClosed          = errors.New("session is closed")
	ErrUnexpectedFrame = errors.New("unexpected frame")
)

// maxBootstrapBody bounds the polling response read.
const maxBootstrapBody = 64 << 10

// protocolVersion is the Engine.IO revision the renderer speaks.
const protocolVersion = "4"

// State is the lifecycle position of a Session.
type State int

// Session states, in handshake order.
const (
	StateDisconnected State = iota
	StatePolled
	StateUpgrading
	StateJoined
	StateReady
	StateClosed
	StateFailed
)

var stateNames = [...]string{"disconnected", "polled", "upgrading", "joined", "ready", "closed", "failed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Auth carries the caller-owned credentials. It is read, never modified.
type Auth struct {
	// Token is sent as the apiKey query parameter on both channels.
	Token string

	// Header is added to the bootstrap request and the websocket upgrade.
	Header http.Header
}

// Options configures Dial.
type Options struct {
	// URL is the Engine.IO endpoint, e.g. https://host/socket.io/.
	URL string

	// Namespace is the Socket.IO namespace to join, e.g. "/books".
	Namespace string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Yeast      *Yeast
	Logger     *slog.Logger

	// OnState, when set, is called after every state change.
	OnState func(State)
}

// openPayload is the JSON body of an Engine.IO open packet.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// Session is one established connection. A new Session always bootstraps
// a fresh session id; ids are never reused across reconnects.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	sid   string
	conn  Conn
}

// Dial runs the full handshake and returns a Session in StateReady.
// Confirmation mismatches are logged and tolerated; transport failures are
// fatal and leave the session in StateFailed.
func Dial(ctx context.Context, opts Options, auth Auth) (*Session, error) {
	s := newSession(opts)

	sid, err := s.bootstrap(ctx, auth)
	if err != nil {
		s.setState(StateFailed)
		return s, err
	}
	s.sid = sid
	s.setState(StatePolled)

	s.setState(StateUpgrading)
	conn, err := s.upgrade(ctx, auth)
	if err != nil {
		s.setState(StateFailed)
		return s, err
	}

	return s, s.Handshake(ctx, conn)
}

func newSession(opts Options) *Session {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Yeast == nil {
		opts.Yeast = NewYeast(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{opts: opts, logger: logger.With(slog.String("component", "transport"))}
}

// bootstrap performs the polling request that yields the session id.
func (s *Session) bootstrap(ctx context.Context, auth Auth) (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %q: %v", ErrHandshake, s.opts.URL, err)
	}
	q := u.Query()
	q.Set("apiKey", auth.Token)
	q.Set("isServer", "0")
	q.Set("EIO", protocolVersion)
	q.Set("transport", "polling")
	q.Set("t", s.opts.Yeast.Next())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	for k, vs := range auth.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", ErrPollStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBootstrapBody))
	if err != nil {
		return "", fmt.Errorf("%w: reading bootstrap body: %v", ErrHandshake, err)
	}

	open, err := parseOpen(string(body))
	if err != nil {
		return "", err
	}
	s.logger.Debug("session bootstrapped",
		slog.String("sid", open.SID),
		slog.Int("pingInterval", open.PingInterval),
		slog.Int("pingTimeout", open.PingTimeout))
	return open.SID, nil
}

// parseOpen extracts the open payload from a polling body. The body is an
// open packet ("0{...}"), optionally length-prefixed ("97:0{...}").
func parseOpen(body string) (openPayload, error) {
	var open openPayload
	candidates := []string{}
	if len(body) > 1 {
		candidates = append(candidates, body[1:])
	}
	if start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); start >= 0 && end > start {
		candidates = append(candidates, body[start:end+1])
	}

	for _, c := range candidates {
		open = openPayload{}
		if err := json.Unmarshal([]byte(c), &open); err == nil {
			if open.SID == "" {
				return open, ErrNoSessionID
			}
			return open, nil
		}
	}
	return open, fmt.Errorf("%w: body %q", ErrNoSessionID, truncate(body, 80))
}

// upgrade opens the websocket channel for the bootstrapped session.
func (s *Session) upgrade(ctx context.Context, auth Auth) (Conn, error) {
	u, err := websocketURL(s.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelOpen, err)
	}
	q := u.Query()
	q.Set("apiKey", auth.Token)
	q.Set("isServer", "0")
	q.Set("EIO", protocolVersion)
	q.Set("transport", "websocket")
	q.Set("sid", s.sid)
	u.RawQuery = q.Encode()

	ws, resp, err := s.opts.Dialer.DialContext(ctx, u.String(), auth.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelOpen, err)
	}
	ws.SetReadLimit(-1)
	return &wsConn{conn: ws}, nil
}

func websocketURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// Handshake runs the upgrade confirmation and namespace join on an already
// open channel: 2probe/3probe, 5, 40<ns>, and the ready event.
func (s *Session) Handshake(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateUpgrading)

	if err := s.send(ctx, wire.Probe); err != nil {
		return s.fail(err)
	}
	if _, err := s.expect(ctx, wire.TypeProbeAck, "3probe"); err != nil {
		return s.fail(err)
	}
	if err := s.send(ctx, wire.Upgrade); err != nil {
		return s.fail(err)
	}
	if err := s.send(ctx, wire.Connect(s.opts.Namespace)); err != nil {
		return s.fail(err)
	}
	if _, err := s.expect(ctx, wire.TypeConnectAck, wire.Connect(s.opts.Namespace).String()); err != nil {
		return s.fail(err)
	}
	s.setState(StateJoined)

	if _, err := s.expect(ctx, wire.TypeReady, wire.Event(s.opts.Namespace, `["ready"]`).String()); err != nil {
		return s.fail(err)
	}
	s.setState(StateReady)
	s.logger.Debug("session ready", slog.String("namespace", s.opts.Namespace))
	return nil
}

// expect reads the next frame and warns when it is not of the wanted type.
// Only channel errors are returned.
func (s *Session) expect(ctx context.Context, want wire.Type, display string) (string, error) {
	raw, err := s.receive(ctx)
	if err != nil {
		return "", err
	}
	got := wire.TypeUnknown
	if p, perr := wire.Parse(raw); perr == nil {
		got = wire.Classify(p, s.opts.Namespace)
	}
	if got != want {
		s.logger.Warn("unexpected handshake frame",
			slog.String("want", display),
			slog.String("got", truncate(raw, 120)))
	}
	return raw, nil
}

func (s *Session) fail(err error) error {
	s.setState(StateFailed)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return fmt.Errorf("%w: %v", ErrHandshake, err)
}

func (s *Session) send(ctx context.Context, p wire.Packet) error {
	return s.conn.Send(ctx, p.String())
}

// receive reads one frame, answering bare heartbeats on the way.
func (s *Session) receive(ctx context.Context) (string, error) {
	for {
		raw, err := s.conn.Receive(ctx)
		if err != nil {
			return "", err
		}
		if !IsHeartbeat(raw) {
			return raw, nil
		}
		if err := s.send(ctx, wire.Pong); err != nil {
			return "", err
		}
	}
}

// Send writes one raw frame on the persistent channel.
func (s *Session) Send(ctx context.Context, frame string) error {
	conn, err := s.usable()
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, frame); err != nil {
		s.setState(StateFailed)
		return err
	}
	return nil
}

// Receive reads one raw frame. Heartbeats are returned to the caller, which
// owns the request/response correlation.
func (s *Session) Receive(ctx context.Context) (string, error) {
	conn, err := s.usable()
	if err != nil {
		return "", err
	}
	raw, err := conn.Receive(ctx)
	if err != nil {
		s.setState(StateFailed)
		return "", err
	}
	return raw, nil
}

func (s *Session) usable() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state == StateClosed || s.state == StateFailed {
		return nil, fmt.Errorf("%w (state %s)", ErrClosed, s.state)
	}
	return s.conn, nil
}

// Close shuts the channel down. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	if s.state != StateFailed {
		s.state = StateClosed
	}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the bootstrapped session id.
func (s *Session) ID() string {
	return s.sid
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

// IsHeartbeat reports whether raw is a bare server ping.
func IsHeartbeat(raw string) bool {
	p, err := wire.Parse(raw)
	return err == nil && p.Kind == wire.KindPing && p.Data == ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
