// Package app contains the core application logic: configuration and
// settings resolution, the run pipeline from project file to dispatched
// units, and the status server. It is decoupled from any specific entrypoint
// like a CLI.
package app
