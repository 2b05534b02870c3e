// Package utils provides utility functions for the application.
package utils

import (
	"sync"
	"time"
)

var (
	localMu       sync.RWMutex
	localLocation = time.FixedZone("UTC-3", DefaultTimezoneOffset)
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// LoadLocation resolves a zone name, falling back to a fixed offset when the
// zone database does not know it.
func LoadLocation(name string, fallbackOffset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("fallback", fallbackOffset)
}

// SetLocalLocation sets the business timezone used by LocalNow and ToLocal
func SetLocalLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	localMu.Lock()
	localLocation = loc
	localMu.Unlock()
}

// LocalLocation returns the business timezone
func LocalLocation() *time.Location {
	localMu.RLock()
	defer localMu.RUnlock()
	return localLocation
}

// LocalNow returns the current time in the business timezone
func LocalNow() time.Time {
	return time.Now().In(LocalLocation())
}

// ToLocal converts t to the business timezone
func ToLocal(t time.Time) time.Time {
	return t.In(LocalLocation())
}
