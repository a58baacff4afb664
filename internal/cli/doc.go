// Package cli parses command-line arguments, validates user input, and
// handles process-level concerns like exit codes. It translates the
// selection flags (scenarios, steps, group, mode) into the application's
// internal configuration.
package cli
