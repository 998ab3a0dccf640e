package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintUsage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printUsage(&buf)

	for _, cmd := range []string{cmdDownload, cmdConvert, cmdQuery, cmdConfig, cmdDoctor, cmdVersion, cmdHelp} {
		if !strings.Contains(buf.String(), "  "+cmd) {
			t.Errorf("usage does not list %q", cmd)
		}
	}
}

func TestRunHelp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"no args", nil, ExitSuccess, "Commands:", ""},
		{"download", []string{"download"}, ExitSuccess, "--no-convert", ""},
		{"convert", []string{"convert"}, ExitSuccess, "book2pdf convert <dir>", ""},
		{"query", []string{"query"}, ExitSuccess, "--api-key", ""},
		{"config", []string{"config"}, ExitSuccess, "book2pdf config", ""},
		{"doctor", []string{"doctor"}, ExitSuccess, "--json", ""},
		{"unknown", []string{"publish"}, ExitUsage, "", "Unknown command: publish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := runHelp(tt.args, &Environment{Stdout: &stdout, Stderr: &stderr})

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stdout.String(), tt.wantStdout) {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantStdout)
			}
			if !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}
