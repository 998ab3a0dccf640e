package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-book2pdf/internal/hints"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string      `json:"status"` // "ready", "warnings", "errors"
	Chrome   chromeInfo  `json:"chrome"`
	Env      envInfo     `json:"environment"`
	Account  accountInfo `json:"account"`
	System   systemInfo  `json:"system"`
	Warnings []string    `json:"warnings,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     string `json:"rod_no_sandbox"`
	BrowserBin    string `json:"rod_browser_bin"`
}

// accountInfo reports which credentials the environment supplies. Values
// are never printed.
type accountInfo struct {
	Email    bool `json:"email"`
	Password bool `json:"password"`
	APIKey   bool `json:"api_key"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempWritable bool `json:"temp_writable"`
}

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// runDoctorCmd executes the doctor command and returns an exit code:
// ExitSuccess when ready (warnings included), ExitGeneral on errors.
func runDoctorCmd(args []string, env *Environment) int {
	asJSON := false
	for _, arg := range args {
		switch arg {
		case "--json":
			asJSON = true
		case "-h", "--help":
			printCommandUsage(env.Stdout, cmdDoctor)
			return ExitSuccess
		}
	}

	r := runDoctor()
	if asJSON {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(r)
	} else {
		printDoctorResult(env.Stdout, r)
	}

	if r.Status == statusErrors {
		return ExitGeneral
	}
	return ExitSuccess
}

func runDoctor() *doctorResult {
	r := &doctorResult{
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  os.Getenv("ROD_NO_SANDBOX"),
			BrowserBin: os.Getenv("ROD_BROWSER_BIN"),
		},
	}
	for _, check := range []func(*doctorResult){checkChrome, checkEnvironment, checkAccount, checkSystem} {
		check(r)
	}

	switch {
	case len(r.Errors) > 0:
		r.Status = statusErrors
	case len(r.Warnings) > 0:
		r.Status = statusWarnings
	default:
		r.Status = statusReady
	}
	return r
}

func (r *doctorResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *doctorResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// checkChrome finds the browser the renderer would launch. A missing browser
// is only a warning since rod downloads one on first use.
func checkChrome(r *doctorResult) {
	bin := r.Env.BrowserBin
	if bin == "" {
		found := false
		if bin, found = launcher.LookPath(); !found {
			r.warn("Chrome/Chromium not found; one is downloaded on the first PDF conversion (or set ROD_BROWSER_BIN)")
			return
		}
	}
	if _, err := os.Stat(bin); err != nil {
		r.fail("Chrome not found at %s", bin)
		return
	}

	r.Chrome = chromeInfo{Found: true, Path: bin, Sandbox: r.Env.NoSandbox != "1"}
	out, err := exec.Command(bin, "--version").Output() // #nosec G204 -- path from launcher lookup or ROD_BROWSER_BIN
	if err != nil {
		r.warn("Could not get Chrome version: %v", err)
		return
	}
	r.Chrome.Version = strings.TrimSpace(string(out))
}

func checkEnvironment(r *doctorResult) {
	r.Env.Container, r.Env.ContainerHint = isContainer()
	r.Env.CI = hints.InCI() || os.Getenv("CIRCLECI") != ""

	if (r.Env.Container || r.Env.CI) && r.Env.NoSandbox != "1" {
		r.warn("Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// isContainer reports a container environment and the signal that gave it
// away, most explicit first.
func isContainer() (bool, string) {
	switch {
	case os.Getenv("BOOK2PDF_CONTAINER") == "1":
		return true, "BOOK2PDF_CONTAINER=1"
	case hints.IsInContainer():
		return true, "/.dockerenv"
	case os.Getenv("container") != "":
		return true, "container=" + os.Getenv("container")
	case os.Getenv("KUBERNETES_SERVICE_HOST") != "":
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkAccount reports which credential variables are set. An email
// without a password or key downloads anonymously.
func checkAccount(r *doctorResult) {
	r.Account = accountInfo{
		Email:    os.Getenv("BOOK2PDF_EMAIL") != "",
		Password: os.Getenv("BOOK2PDF_PASSWORD") != "",
		APIKey:   os.Getenv("BOOK2PDF_API_KEY") != "",
	}
	if r.Account.Email && !r.Account.Password && !r.Account.APIKey {
		r.warn("BOOK2PDF_EMAIL is set without BOOK2PDF_PASSWORD; downloads will be anonymous")
	}
}

// checkSystem verifies rendering can write temp files.
func checkSystem(r *doctorResult) {
	probe := filepath.Join(os.TempDir(), "book2pdf-doctor-test")
	if err := os.WriteFile(probe, []byte("test"), 0600); err != nil {
		r.fail("Temp directory not writable: %s", os.TempDir())
		return
	}
	_ = os.Remove(probe)
	r.System.TempWritable = true
}

// doctorLine is one printed finding.
type doctorLine struct {
	tag  string
	text string
}

func ok(format string, args ...any) doctorLine {
	return doctorLine{"OK", fmt.Sprintf(format, args...)}
}

func (r *doctorResult) sections() []struct {
	title string
	lines []doctorLine
} {
	var chrome []doctorLine
	if r.Chrome.Found {
		chrome = append(chrome, ok("Found at %s", r.Chrome.Path))
		if r.Chrome.Version != "" {
			chrome = append(chrome, ok("Version: %s", r.Chrome.Version))
		}
		if r.Chrome.Sandbox {
			chrome = append(chrome, ok("Sandbox: enabled"))
		} else {
			chrome = append(chrome, ok("Sandbox: disabled (ROD_NO_SANDBOX=1)"))
		}
	} else {
		chrome = append(chrome, doctorLine{"WARN", "Not found"})
	}

	environment := []doctorLine{ok("Platform: %s/%s", r.Env.OS, r.Env.Arch)}
	if r.Env.Container {
		environment = append(environment, ok("Container: detected (%s)", r.Env.ContainerHint))
	}
	if r.Env.CI {
		environment = append(environment, ok("CI: detected"))
	}

	var account doctorLine
	switch {
	case r.Account.APIKey:
		account = ok("API key from BOOK2PDF_API_KEY")
	case r.Account.Email && r.Account.Password:
		account = ok("Login with BOOK2PDF_EMAIL/BOOK2PDF_PASSWORD")
	default:
		account = ok("Anonymous")
	}

	system := ok("Temp directory: writable")
	if !r.System.TempWritable {
		system = doctorLine{"ERROR", "Temp directory: not writable"}
	}

	var warnings, errs []doctorLine
	for _, w := range r.Warnings {
		warnings = append(warnings, doctorLine{"WARN", w})
	}
	for _, e := range r.Errors {
		errs = append(errs, doctorLine{"ERROR", e})
	}

	return []struct {
		title string
		lines []doctorLine
	}{
		{"Chrome/Chromium", chrome},
		{"Environment", environment},
		{"Account", []doctorLine{account}},
		{"System", []doctorLine{system}},
		{"Warnings:", warnings},
		{"Errors:", errs},
	}
}

// printDoctorResult writes the human-readable report. Empty sections are
// left out.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "book2pdf doctor")
	fmt.Fprintln(w)

	for _, s := range r.sections() {
		if len(s.lines) == 0 {
			continue
		}
		fmt.Fprintln(w, s.title)
		for _, l := range s.lines {
			fmt.Fprintf(w, "  [%s] %s\n", l.tag, l.text)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to download")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
