package hints

// ForBrowserConnect tests do not run in parallel: they use t.Setenv and
// swap the package-level IsInContainer.

import (
	"strings"
	"testing"
)

func withContainer(t *testing.T, in bool) {
	t.Helper()
	orig := IsInContainer
	t.Cleanup(func() { IsInContainer = orig })
	IsInContainer = func() bool { return in }
}

func clearCI(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		t.Setenv(k, "")
	}
}

func TestForBrowserConnect(t *testing.T) {
	tests := []struct {
		name        string
		container   bool
		ci          string
		noSandbox   string
		browserBin  string
		wantSandbox bool
		wantBin     bool
	}{
		{"in CI", false, "true", "", "", true, true},
		{"in Docker", true, "", "", "", true, true},
		{"sandbox already disabled", true, "", "1", "", false, true},
		{"browser bin set", false, "", "", "/usr/bin/chromium", false, false},
		{"all configured", true, "true", "1", "/usr/bin/chromium", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withContainer(t, tt.container)
			clearCI(t)
			t.Setenv("CI", tt.ci)
			t.Setenv("ROD_NO_SANDBOX", tt.noSandbox)
			t.Setenv("ROD_BROWSER_BIN", tt.browserBin)

			hint := ForBrowserConnect()
			if got := strings.Contains(hint, "ROD_NO_SANDBOX"); got != tt.wantSandbox {
				t.Errorf("sandbox hint = %v, want %v (%q)", got, tt.wantSandbox, hint)
			}
			if got := strings.Contains(hint, "ROD_BROWSER_BIN"); got != tt.wantBin {
				t.Errorf("browser bin hint = %v, want %v (%q)", got, tt.wantBin, hint)
			}
			if !tt.wantSandbox && !tt.wantBin && hint != "" {
				t.Errorf("expected no hint, got %q", hint)
			}
		})
	}
}

func TestForAuthorization(t *testing.T) {
	t.Parallel()

	if h := ForAuthorization(false); !strings.Contains(h, "--email") || !strings.Contains(h, "BOOK2PDF_PASSWORD") {
		t.Errorf("anonymous hint = %q", h)
	}
	if h := ForAuthorization(true); !strings.Contains(h, "--page-count") {
		t.Errorf("logged-in hint = %q", h)
	}
}

func TestForConfigNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"suggests user config path", []string{"book.yaml", "/home/u/.config/go-book2pdf/book.yaml"}, "or create /home/u/.config/go-book2pdf/book.yaml"},
		{"local paths only", []string{"book.yaml", "book.yml"}, "use --config"},
		{"no paths", nil, "use --config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ForConfigNotFound(tt.paths); !strings.Contains(got, tt.want) {
				t.Errorf("ForConfigNotFound() = %q, want containing %q", got, tt.want)
			}
		})
	}
}

func TestFormat_Consistency(t *testing.T) {
	t.Parallel()

	for name, h := range map[string]string{
		"timeout":        ForTimeout(),
		"transport":      ForTransport(),
		"output":         ForOutputDirectory(),
		"nothingToMerge": ForNothingToMerge(),
		"authorization":  ForAuthorization(false),
	} {
		if !strings.HasPrefix(h, "\n  hint: ") {
			t.Errorf("%s hint = %q, want \"\\n  hint: \" prefix", name, h)
		}
	}
	if format("") != "" || formatHints(nil) != "" {
		t.Error("empty hints must format to an empty string")
	}
}
