package main

import (
	"io"
	"os"
	"time"

	book2pdf "github.com/alnah/go-book2pdf"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now    func() time.Time
	Stdout io.Writer
	Stderr io.Writer

	// PageRenderer replaces headless Chrome when set. The caller owns it.
	PageRenderer book2pdf.PageRenderer
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}
