package main

import (
	"errors"
	"os"

	book2pdf "github.com/alnah/go-book2pdf"
	"github.com/alnah/go-book2pdf/internal/config"
	"github.com/alnah/go-book2pdf/internal/libra"
)

// Exit codes for the book2pdf CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Book downloaded and/or converted
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, no pages
	ExitBrowser = 4 // Browser/Chrome errors
	ExitRemote  = 5 // Web session, transport or protocol errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, book2pdf.ErrBrowserConnect) ||
		errors.Is(err, book2pdf.ErrPageCreate) ||
		errors.Is(err, book2pdf.ErrPageLoad) ||
		errors.Is(err, book2pdf.ErrPDFGeneration) {
		return ExitBrowser
	}

	if errors.Is(err, book2pdf.ErrTransport) ||
		errors.Is(err, book2pdf.ErrProtocolDesync) ||
		errors.Is(err, book2pdf.ErrAuthorization) ||
		errors.Is(err, libra.ErrStatus) ||
		errors.Is(err, libra.ErrLogin) ||
		errors.Is(err, libra.ErrNoAPIKey) ||
		errors.Is(err, libra.ErrNoState) ||
		errors.Is(err, libra.ErrNoBook) {
		return ExitRemote
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, book2pdf.ErrNoPages) ||
		errors.Is(err, book2pdf.ErrManifest) ||
		errors.Is(err, book2pdf.ErrNothingToMerge) {
		return ExitIO
	}

	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, book2pdf.ErrInvalidFormat) ||
		errors.Is(err, book2pdf.ErrInvalidBook) ||
		errors.Is(err, book2pdf.ErrInvalidAssetPath) {
		return ExitUsage
	}

	return ExitGeneral
}
