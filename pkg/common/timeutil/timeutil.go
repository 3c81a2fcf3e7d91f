// Package timeutil provides a small clock abstraction so components that
// care about the current time can be tested deterministically.
package timeutil

import "time"

// Provider supplies the current time. Production code uses Default;
// tests substitute a Mock with a fixed time.
type Provider interface {
	Now() time.Time
}

// RealTimeProvider returns the system clock time.
type RealTimeProvider struct{}

// Now returns the current UTC time.
func (RealTimeProvider) Now() time.Time { return time.Now().UTC() }

// Default returns a Provider backed by the system clock.
func Default() Provider { return RealTimeProvider{} }

// Mock is a Provider that always reports CurrentTime. Advance it manually
// in tests that need the clock to move.
type Mock struct {
	CurrentTime time.Time
}

// Now returns the mock's fixed time.
func (m *Mock) Now() time.Time { return m.CurrentTime }

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }
