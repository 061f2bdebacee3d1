package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is the "unknown id" signal returned by registry and
// orchestrator operations. It never carries a stack of business context;
// callers treat it as a no-op condition.
var ErrNotFound = errors.New("instance not found")

// ErrNoServers is the terminal "no server data" condition: the directory
// could not be fetched and no usable cache exists.
var ErrNoServers = errors.New("no server data available")

// ValidationError rejects an operation before any state was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// StartError means the external process could not be spawned or exited
// during the settle window. The instance moves to Error.
type StartError struct {
	Port     int
	ExitCode int
	Err      error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("start failed on port %d: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("process on port %d exited immediately (exit code %d)", e.Port, e.ExitCode)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError reports a stop that needed the forced path: the process did
// not exit within the graceful timeout and was killed. The instance still
// ends up Stopped; the error is surfaced as a warning only.
type StopError struct {
	Port int
}

func (e *StopError) Error() string {
	return fmt.Sprintf("process on port %d did not stop gracefully and was killed", e.Port)
}

// WatchdogError wraps a failure inside a monitor tick. The monitor loop
// logs it and backs off to the longer interval; it never propagates past
// the loop.
type WatchdogError struct {
	Op  string
	Err error
}

func (e *WatchdogError) Error() string {
	return fmt.Sprintf("monitor %s failed: %v", e.Op, e.Err)
}

func (e *WatchdogError) Unwrap() error { return e.Err }

// FetchError is a directory fetch that failed after all retries.
// Malformed payloads and transport failures are indistinguishable here.
type FetchError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("directory fetch from %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
