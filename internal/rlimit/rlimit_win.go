//go:build windows

// Package rlimit contains a function to raise the file descriptor limit.
package rlimit

// Raise is a no-op on Windows.
func Raise() error {
	return nil
}
