// Package pipeline holds the pure, per-fragment stages of book conversion:
//   - Emptiness classification of downloaded page fragments
//   - Spacer cleanup before fragments are concatenated into one HTML book
//
// Headless rendering and PDF assembly live in the root book2pdf package.
// Everything here is a pure function of its input and safe to run in
// parallel.
package pipeline
