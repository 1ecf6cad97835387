// Package system supplies the wall clock that stamps run start and finish.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New returns the production clock.
func New() *Clock { return &Clock{} }

// Now implements harvest.Clock.
func (*Clock) Now() time.Time { return time.Now().UTC() }
