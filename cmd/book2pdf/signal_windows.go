//go:build windows

package main

import "os"

// Windows delivers no SIGTERM.
var stopSignals = []os.Signal{os.Interrupt}
