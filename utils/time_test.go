package utils

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestLoadLocation(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		assert.Equal(t, "UTC", LoadLocation("UTC", DefaultTimezoneOffset).String())
	})

	t.Run("UnknownFallsBack", func(t *testing.T) {
		loc := LoadLocation("Nowhere/Invalid", DefaultTimezoneOffset)
		_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
		assert.Equal(t, DefaultTimezoneOffset, offset)
	})

	t.Run("Empty", func(t *testing.T) {
		loc := LoadLocation("", 3600)
		_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
		assert.Equal(t, 3600, offset)
	})
}

func TestLocalLocation(t *testing.T) {
	previous := LocalLocation()
	t.Cleanup(func() { SetLocalLocation(previous) })

	SetLocalLocation(time.FixedZone("test", -3*60*60))
	SetLocalLocation(nil)
	assert.Equal(t, "test", LocalLocation().String())

	// 01:00 UTC on Jan 1st is still the previous year three hours west
	local := ToLocal(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, local.Year())
	assert.Equal(t, 22, local.Hour())
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, hclog.Info, NewLogger(LogOptions{Level: "bogus"}).GetLevel())
	assert.Equal(t, hclog.Debug, NewLogger(LogOptions{Level: "debug", Format: "json"}).GetLevel())
}
