// Package daemon assembles the long-running voxboxd process: it enforces
// single-instance execution with a file lock, rewinds interrupted jobs on
// startup, and supervises the intake watcher, workflow manager, and the
// OAuth endpoint for the remote intake mode.
package daemon
