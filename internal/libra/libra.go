// Package libra talks to the reader's web front end: it holds the cookie
// session, logs in, yields the API key the Socket.IO channel needs, scrapes
// book metadata and downloads covers.
package libra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultBaseURL   = "https://libra.ibuk.pl"
	defaultUserAgent = "go-book2pdf/1.0"

	// APIKeyCookie carries the key the Socket.IO bootstrap sends as apiKey.
	APIKeyCookie = "ilApiKey"

	loginPath     = "/credentials/login-bsr"
	stateScriptID = "app-libra-2-state"
	detailsKey    = "DETAILS_CACHE_KEY"

	coverTimeout = 10 * time.Second
	maxPageBytes = 8 * 1024 * 1024
	maxCoverSize = 16 * 1024 * 1024
)

var (
	ErrStatus   = errors.New("unexpected HTTP status")
	ErrLogin    = errors.New("login failed")
	ErrNoAPIKey = errors.New("API key not found in cookies")
	ErrNoState  = errors.New("book page has no application state")
	ErrNoBook   = errors.New("application state has no book details")
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL   string
	UserAgent string

	Email    string
	Password string

	// APIKey skips login and cookie discovery when set.
	APIKey string

	// Transport is wrapped with tracing. Default: http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client is a cookie-carrying web session.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	email     string
	password  string
	apiKey    string
	logger    *slog.Logger
}

// New creates a Client with an empty cookie jar.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", raw)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		base:      base,
		http:      &http.Client{Jar: jar, Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(rt)},
		userAgent: userAgent,
		email:     cfg.Email,
		password:  cfg.Password,
		apiKey:    cfg.APIKey,
		logger:    logger,
	}, nil
}

// HTTPClient returns the session's client. Its jar is shared with every
// request made through it.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// HasCredentials reports whether an email and password were configured.
func (c *Client) HasCredentials() bool {
	return c.email != "" && c.password != ""
}

// Login posts the credentials. It is a no-op without credentials.
func (c *Client) Login(ctx context.Context) error {
	if !c.HasCredentials() {
		return nil
	}
	c.logger.Info("logging in", slog.String("email", c.email))

	body, err := json.Marshal(map[string]string{"email": c.email, "password": c.password})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, loginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrLogin, resp.StatusCode)
	}
	return nil
}

// APIKey returns the configured key, or establishes a session (logging in
// when credentials are set, visiting the home page otherwise) and reads the
// key cookie.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}

	if c.HasCredentials() {
		if err := c.Login(ctx); err != nil {
			return "", err
		}
	} else if _, err := c.get(ctx, "/", maxPageBytes); err != nil {
		return "", err
	}

	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == APIKeyCookie && ck.Value != "" {
			c.apiKey = ck.Value
			return c.apiKey, nil
		}
	}
	return "", ErrNoAPIKey
}

// Metadata fetches a book page and returns the raw fields of its
// details record.
func (c *Client) Metadata(ctx context.Context, bookURL string) (map[string]json.RawMessage, error) {
	page, err := c.get(ctx, bookURL, maxPageBytes)
	if err != nil {
		return nil, err
	}
	return ParseState(page)
}

// FetchCover downloads a cover image within a fixed timeout.
func (c *Client) FetchCover(ctx context.Context, coverURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, coverTimeout)
	defer cancel()
	return c.get(ctx, coverURL, maxCoverSize)
}

// get resolves target against the base URL and returns the body of a 200
// response, up to limit bytes.
func (c *Client) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", ErrStatus, req.URL.Redacted(), resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

// stateEscapes undoes the entity escaping of the server-rendered state
// script in a single pass, so "&a;q;" decodes to a literal "&q;".
var stateEscapes = strings.NewReplacer("&q;", `"`, "&s;", "'", "&l;", "<", "&g;", ">", "&a;", "&")

// ParseState extracts the details record from a book page's embedded
// application state.
func ParseState(page []byte) (map[string]json.RawMessage, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoState, err)
	}
	script := findByID(doc, "script", stateScriptID)
	if script == nil || script.FirstChild == nil {
		return nil, ErrNoState
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stateEscapes.Replace(script.FirstChild.Data)), &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoState, err)
	}
	raw, ok := state[detailsKey]
	if !ok {
		return nil, ErrNoBook
	}
	var details map[string]json.RawMessage
	if err := json.Unmarshal(raw, &details); err != nil || details == nil {
		return nil, ErrNoBook
	}
	return details, nil
}

func findByID(n *html.Node, tag, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if found := findByID(ch, tag, id); found != nil {
			return found
		}
	}
	return nil
}
