// Package process cleans up browser process trees left behind by the
// headless renderer.
package process
