package libra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const bookPage = `<!DOCTYPE html><html><head>
<script id="app-libra-2-state" type="application/json">{&q;DETAILS_CACHE_KEY&q;:{&q;index&q;:77,&q;title&q;:&q;Go &a; Rust&q;,&q;author&q;:&q;Ann&q;,&q;pages&q;:&q;120&q;,&q;covers&q;:[{&q;jpg_location&q;:&q;https://cdn.example/c.jpg&q;}]},&q;OTHER&q;:1}</script>
</head><body><app-root></app-root></body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLibra mimics the web front end: the home page and login both set the
// API key cookie; login checks the JSON body.
type fakeLibra struct {
	mu    sync.Mutex
	login map[string]string
	paths []string
}

func (f *fakeLibra) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		http.SetCookie(w, &http.Cookie{Name: APIKeyCookie, Value: "anon-key", Path: "/"})
		_, _ = io.WriteString(w, "<html></html>")
	})
	mux.HandleFunc("POST /credentials/login-bsr", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.login = body
		f.mu.Unlock()
		if body["password"] != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: APIKeyCookie, Value: "user-key", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/reader/go", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		_, _ = io.WriteString(w, bookPage)
	})
	mux.HandleFunc("/cover.jpg", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	})
	return mux
}

func (f *fakeLibra) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
}

func (f *fakeLibra) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakeLibra) loginBody() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.login
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeLibra) {
	t.Helper()
	fake := &fakeLibra{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	cfg.Logger = quietLogger()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, fake
}

func TestAPIKey_FromHomePage(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, Config{})
	key, err := c.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey() error: %v", err)
	}
	if key != "anon-key" {
		t.Errorf("APIKey() = %q, want anon-key", key)
	}
	if reqs := fake.requests(); len(reqs) != 1 || reqs[0] != "GET /" {
		t.Errorf("requests = %v", reqs)
	}

	// Cached after the first lookup.
	if _, err := c.APIKey(context.Background()); err != nil || len(fake.requests()) != 1 {
		t.Errorf("second APIKey() made requests: %v, %v", fake.requests(), err)
	}
}

func TestAPIKey_AfterLogin(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, Config{Email: "ann@example.com", Password: "secret"})
	key, err := c.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey() error: %v", err)
	}
	if key != "user-key" {
		t.Errorf("APIKey() = %q, want user-key", key)
	}
	if body := fake.loginBody(); body["email"] != "ann@example.com" || body["password"] != "secret" {
		t.Errorf("login body = %v", body)
	}
}

func TestAPIKey_LoginRejected(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, Config{Email: "ann@example.com", Password: "wrong"})
	if _, err := c.APIKey(context.Background()); !errors.Is(err, ErrLogin) {
		t.Errorf("APIKey() error = %v, want ErrLogin", err)
	}
}

func TestAPIKey_Configured(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, Config{APIKey: "given"})
	key, err := c.APIKey(context.Background())
	if err != nil || key != "given" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}
	if reqs := fake.requests(); len(reqs) != 0 {
		t.Errorf("requests made with a configured key: %v", reqs)
	}
}

func TestAPIKey_NoCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.APIKey(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("APIKey() error = %v, want ErrNoAPIKey", err)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, Config{})
	fields, err := c.Metadata(context.Background(), "/reader/go")
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if string(fields["title"]) != `"Go & Rust"` || string(fields["index"]) != "77" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["OTHER"]; ok {
		t.Error("fields leaked from outside the details record")
	}
}

func TestMetadata_HTTPError(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, Config{})
	if _, err := c.Metadata(context.Background(), "/missing/other"); err == nil {
		// The catch-all handler answers 200 with no state.
		t.Fatal("expected an error for a page without state")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c2, _ := New(Config{BaseURL: srv.URL, Logger: quietLogger()})
	if _, err := c2.Metadata(context.Background(), "/reader/go"); !errors.Is(err, ErrStatus) {
		t.Errorf("Metadata() error = %v, want ErrStatus", err)
	}
}

func TestFetchCover(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, Config{})
	data, err := c.FetchCover(context.Background(), "/cover.jpg")
	if err != nil || len(data) != 3 {
		t.Errorf("FetchCover() = %v, %v", data, err)
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		page    string
		wantErr error
	}{
		{"no script", "<html><body></body></html>", ErrNoState},
		{"empty script", `<script id="app-libra-2-state"></script>`, ErrNoState},
		{"not json", `<script id="app-libra-2-state">{nope</script>`, ErrNoState},
		{"no details", `<script id="app-libra-2-state">{&q;A&q;:1}</script>`, ErrNoBook},
		{"null details", `<script id="app-libra-2-state">{&q;DETAILS_CACHE_KEY&q;:null}</script>`, ErrNoBook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseState([]byte(tt.page)); !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseState() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseState_Unescapes(t *testing.T) {
	t.Parallel()

	page := `<script id="app-libra-2-state">{&q;DETAILS_CACHE_KEY&q;:{&q;review&q;:&q;&l;p&g;It&s;s &a;q; fine&l;/p&g;&q;}}</script>`
	fields, err := ParseState([]byte(page))
	if err != nil {
		t.Fatalf("ParseState() error: %v", err)
	}
	var review string
	if err := json.Unmarshal(fields["review"], &review); err != nil {
		t.Fatal(err)
	}
	if review != "<p>It's &q; fine</p>" {
		t.Errorf("review = %q", review)
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"libra.ibuk.pl", "://bad"} {
		if _, err := New(Config{BaseURL: raw}); err == nil || !strings.Contains(err.Error(), "invalid base URL") {
			t.Errorf("New(%q) error = %v", raw, err)
		}
	}
}
