package book2pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/alnah/go-book2pdf/internal/metrics"
	"github.com/alnah/go-book2pdf/internal/telemetry"
	"github.com/alnah/go-book2pdf/internal/transport"
	"github.com/alnah/go-book2pdf/internal/wire"
)

// Remote operation names.
const (
	opPage  = "page"
	opCSS   = "css"
	opFonts = "font"
)

// DefaultNamespace is the Socket.IO namespace carrying book traffic.
const DefaultNamespace = "/books"

// Channel is the persistent, message-framed connection the client talks
// over. *transport.Session implements it.
type Channel interface {
	Send(ctx context.Context, frame string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Compile-time interface check.
var _ Channel = (*transport.Session)(nil)

// pageArgs is the fixed rendering request for one page. Field order is
// the order the renderer's own client sends.
type pageArgs struct {
	BookID      int    `json:"bookId"`
	Compressed  int    `json:"compressed"`
	Format      string `json:"format"`
	PageLower   int    `json:"pagenumber"`
	FontSize    int    `json:"fontSize"`
	PageNumber  int    `json:"pageNumber"`
	Compression int    `json:"compression"`
	Type        string `json:"type"`
	Width       int    `json:"width"`
}

func newPageArgs(bookID, page int) pageArgs {
	return pageArgs{
		BookID:      bookID,
		Compressed:  10,
		Format:      "html",
		PageLower:   page,
		FontSize:    12,
		PageNumber:  page,
		Compression: 10,
		Type:        "standard",
		Width:       716,
	}
}

type cssArgs struct {
	BookID   int     `json:"bookId"`
	Width    int     `json:"width"`
	FontSize float64 `json:"fontSize"`
}

type fontArgs struct {
	BookID int `json:"bookId"`
}

// Client issues remote operations over one Channel. The wire format has no
// request ids, so exactly one operation is in flight at a time: callers
// queue on a single token and a response is the next meaningful frame.
//
// After a decode failure or a canceled in-flight call the channel is out of
// step and every later call fails fast with ErrProtocolDesync. A broken
// channel likewise fails later calls with ErrTransport.
type Client struct {
	ch        Channel
	namespace string
	logger    *slog.Logger

	token chan struct{}

	mu     sync.Mutex
	broken error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithNamespace sets the Socket.IO namespace. Default: "/books".
func WithNamespace(ns string) ClientOption {
	return func(c *Client) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithClientLogger sets the logger. Default: slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps an established channel. The channel must already be past
// its handshake.
func NewClient(ch Channel, opts ...ClientOption) *Client {
	c := &Client{
		ch:        ch,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
		token:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialConfig describes how to reach the remote renderer.
type DialConfig struct {
	// SocketURL is the Engine.IO endpoint, e.g. https://host/socket.io/.
	SocketURL string
	Namespace string

	// APIKey is passed as the apiKey query parameter on both channels.
	APIKey string

	// HTTPClient runs the polling bootstrap. Its cookie jar, if any, carries
	// the web session. Default: http.DefaultClient.
	HTTPClient *http.Client

	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Dial opens a session and returns a Client ready for calls. Any handshake
// failure is reported as ErrTransport.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "book2pdf.Dial")
	defer span.End()

	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	sess, err := transport.Dial(ctx, transport.Options{
		URL:        cfg.SocketURL,
		Namespace:  ns,
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	}, transport.Auth{Token: cfg.APIKey})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	span.SetAttributes(attribute.String("session.id", sess.ID()))

	return NewClient(sess, WithNamespace(ns), WithClientLogger(logger)), nil
}

// FetchPage returns the HTML fragment of one page. A server denial is
// returned as *AuthorizationError.
func (c *Client) FetchPage(ctx context.Context, bookID, page int) (string, error) {
	res, err := c.call(ctx, opPage, newPageArgs(bookID, page))
	if err != nil {
		var authErr *AuthorizationError
		if errors.As(err, &authErr) {
			authErr.Page = page
		}
		return "", err
	}
	return res, nil
}

// FetchStylesheet returns the book stylesheet.
func (c *Client) FetchStylesheet(ctx context.Context, bookID int) (string, error) {
	return c.call(ctx, opCSS, cssArgs{BookID: bookID, Width: 839, FontSize: 15.04})
}

// FetchFonts returns the book's @font-face bundle with the renderer's
// malformed "; format" separator repaired.
func (c *Client) FetchFonts(ctx context.Context, bookID int) (string, error) {
	fonts, err := c.call(ctx, opFonts, fontArgs{BookID: bookID})
	if err != nil {
		return "", err
	}
	return NormalizeFonts(fonts), nil
}

// NormalizeFonts repairs "src: url(...); format(...)" into valid CSS.
func NormalizeFonts(css string) string {
	return strings.ReplaceAll(css, "; format", " format")
}

// Close closes the underlying channel.
func (c *Client) Close() error {
	return c.ch.Close()
}

// call runs one request/response exchange while holding the token.
func (c *Client) call(ctx context.Context, op string, args any) (result string, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "book2pdf.rpc."+op)
	start := time.Now()
	defer func() {
		metrics.RPCDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.RPCCallsTotal.WithLabelValues(op, outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
	}()

	select {
	case c.token <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.token }()

	if err := c.brokenErr(); err != nil {
		return "", err
	}

	pkt, err := wire.EncodeCall(c.namespace, op, args)
	if err != nil {
		return "", err
	}
	if err := c.ch.Send(ctx, pkt.String()); err != nil {
		return "", c.breakWith(ErrTransport, fmt.Errorf("sending %s: %w", op, err))
	}

	res, err := c.await(ctx, op)
	if err != nil {
		return "", err
	}
	if res.Denied {
		return "", &AuthorizationError{Message: res.Message}
	}
	return res.HTML, nil
}

// await reads frames until the response to op arrives. Heartbeats are
// answered in place; stray handshake frames left over from a lenient
// handshake are skipped.
func (c *Client) await(ctx context.Context, op string) (wire.Result, error) {
	for {
		raw, err := c.ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// The response may still arrive and would answer the next call.
				return wire.Result{}, c.breakWith(ErrProtocolDesync, fmt.Errorf("%s abandoned: %w", op, ctx.Err()))
			}
			return wire.Result{}, c.breakWith(ErrTransport, fmt.Errorf("awaiting %s: %w", op, err))
		}

		p, err := wire.Parse(raw)
		if err != nil {
			return wire.Result{}, c.breakWith(ErrProtocolDesync, fmt.Errorf("%s response %q: %w", op, truncate(raw, 80), err))
		}

		switch wire.Classify(p, c.namespace) {
		case wire.TypeHeartbeat:
			metrics.HeartbeatsTotal.Inc()
			if err := c.ch.Send(ctx, wire.Pong.String()); err != nil {
				return wire.Result{}, c.breakWith(ErrTransport, fmt.Errorf("answering heartbeat: %w", err))
			}
			continue
		case wire.TypeNoop, wire.TypeProbeAck, wire.TypeConnectAck, wire.TypeReady:
			c.logger.Debug("skipping frame while awaiting response",
				slog.String("op", op), slog.String("frame", truncate(raw, 80)))
			continue
		case wire.TypeClosed:
			return wire.Result{}, c.breakWith(ErrTransport, fmt.Errorf("server closed the channel awaiting %s", op))
		case wire.TypeConnectError:
			return wire.Result{}, c.breakWith(ErrTransport, fmt.Errorf("namespace rejected: %s", truncate(p.Data, 120)))
		case wire.TypeEvent:
			res, err := wire.DecodeResult(p, c.namespace)
			if err != nil {
				return wire.Result{}, c.breakWith(ErrProtocolDesync, fmt.Errorf("%s response: %w", op, err))
			}
			return res, nil
		default:
			return wire.Result{}, c.breakWith(ErrProtocolDesync, fmt.Errorf("unexpected frame awaiting %s: %q", op, truncate(raw, 80)))
		}
	}
}

// breakWith records the first fatal failure and returns it wrapped in kind.
func (c *Client) breakWith(kind, cause error) error {
	err := fmt.Errorf("%w: %v", kind, cause)
	c.mu.Lock()
	if c.broken == nil {
		c.broken = err
	}
	c.mu.Unlock()
	c.logger.Error("channel unusable", slog.String("error", err.Error()))
	return err
}

func (c *Client) brokenErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		return nil
	}
	return fmt.Errorf("channel unusable after earlier failure: %w", c.broken)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthorization):
		return "denied"
	case errors.Is(err, ErrProtocolDesync):
		return "desync"
	case errors.Is(err, ErrTransport):
		return "transport"
	}
	return "error"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
