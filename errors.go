package book2pdf

import (
	"errors"
	"fmt"
)

// Sentinel errors for library operations.
var (
	// ErrTransport marks an unrecoverable connection failure: no session id,
	// channel open failure, or a channel that broke mid-conversation.
	ErrTransport = errors.New("transport failed")

	// ErrProtocolDesync marks a response that could not be decoded. The
	// channel is presumed out of step and every later call fails.
	ErrProtocolDesync = errors.New("protocol desynchronized")

	// ErrAuthorization marks a server-side denial for a specific page.
	ErrAuthorization = errors.New("access denied")

	ErrRender         = errors.New("page render failed")
	ErrMergePage      = errors.New("could not merge page")
	ErrNothingToMerge = errors.New("no rendered pages to merge")
	ErrNoPages        = errors.New("no page files found")
	ErrManifest       = errors.New("invalid book manifest")
	ErrInvalidFormat  = errors.New("invalid output format")
	ErrInvalidBook    = errors.New("invalid book")

	ErrInvalidAssetPath = errors.New("invalid asset path")

	ErrPDFGeneration  = errors.New("PDF generation failed")
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
)

// AuthorizationError is returned by Client.FetchPage when the server refuses
// a page. It matches ErrAuthorization with errors.Is.
type AuthorizationError struct {
	Page    int
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("page %d: %s: %s", e.Page, ErrAuthorization, e.Message)
	}
	return fmt.Sprintf("%s: %s", ErrAuthorization, e.Message)
}

// Is reports whether target is ErrAuthorization.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}
