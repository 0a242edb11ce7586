// Package timeutil holds the agency's reference location. Calendar-day
// comparisons (due today, days late) are made in this location.
package timeutil

import (
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

var (
	mu       sync.RWMutex
	location = time.UTC
)

// SetLocation changes the reference location. An unknown name keeps the
// current location and returns the load error.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	mu.Lock()
	location = loc
	mu.Unlock()
	return nil
}

// Location returns the reference location.
func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return location
}

// Now returns the current instant in the reference location.
func Now() time.Time {
	return time.Now().In(Location())
}

// Today returns the current calendar date in the reference location.
func Today() civil.Date {
	return civil.DateOf(Now())
}

// Midnight converts a calendar date to its first instant in UTC, the form
// stored in date columns.
func Midnight(d civil.Date) time.Time {
	return d.In(time.UTC)
}
