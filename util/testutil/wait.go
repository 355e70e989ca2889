package testutil

import (
	"testing"
	"time"
)

// WaitFor polls a condition function until it returns true or times out.
// It's useful for waiting on asynchronous operations in tests, such as
// listener registration being acknowledged by the lock table dispatcher.
//
// Usage:
//
//	testutil.WaitFor(t, 5*time.Second, "listener to be deregistered", func() bool {
//	    return !listener.IsRegistered()
//	})
func WaitFor(t testing.TB, timeout time.Duration, message string, condition func() bool) {
	t.Helper()

	if condition() {
		return
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s (waited %v)", message, timeout)
		}
	}
}
