package models

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderingKey_NewestSortsFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(time.Second),
		base.Add(time.Second + 500*time.Millisecond),
		base.Add(time.Hour),
		base.Add(-24 * time.Hour),
	}

	keys := make([]string, len(times))
	byKey := make(map[string]time.Time, len(times))
	for i, ts := range times {
		keys[i] = NewOrderingKey(ts)
		byKey[keys[i]] = ts
	}
	sort.Strings(keys)

	for i := 1; i < len(keys); i++ {
		assert.True(t, byKey[keys[i-1]].After(byKey[keys[i]]), "key %d should be newer than key %d", i-1, i)
	}
}

func TestNewOrderingKey_UniqueWithinInstant(t *testing.T) {
	now := time.Now()
	assert.NotEqual(t, NewOrderingKey(now), NewOrderingKey(now))
}

func TestFormatDocumentNumber(t *testing.T) {
	tests := []struct {
		code   string
		number int64
		year   int
		want   string
	}{
		{"OF", 1, 2025, "OF 0001/2025"},
		{"MEM", 42, 2024, "MEM 0042/2024"},
		{"OF", 9999, 2025, "OF 9999/2025"},
		{"OF", 12345, 2025, "OF 12345/2025"},
		{"OF", 0, 2025, "OF 0000/2025"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDocumentNumber(tt.code, tt.number, tt.year))
		})
	}
}

func TestNewSequenceCounter(t *testing.T) {
	now := time.Now().UTC()
	counter := NewSequenceCounter("OF", 2025, now)

	assert.Equal(t, "OF_2025", counter.ScopeKey)
	assert.Zero(t, counter.CurrentNumber)
	assert.NotEmpty(t, counter.Version)
	assert.NotEqual(t, counter.Version, NewSequenceCounter("OF", 2025, now).Version)

	counter.CurrentNumber = 7
	assert.Equal(t, "OF 0007/2025", counter.Formatted())
}

func TestNumberLog_Validate(t *testing.T) {
	now := time.Now().UTC()
	counter := NewSequenceCounter("OF", 2025, now)
	counter.CurrentNumber = 3

	t.Run("Generated", func(t *testing.T) {
		entry := NewGeneratedLog(counter, "u1", "Maria", now)
		require.NoError(t, entry.Validate())
		assert.False(t, entry.IsCorrection())
		assert.Nil(t, entry.PreviousNumber)
	})

	t.Run("Corrected", func(t *testing.T) {
		entry := NewCorrectedLog(counter, 2, "ajuste manual", "a1", "Admin", now)
		require.NoError(t, entry.Validate())
		assert.True(t, entry.IsCorrection())
		require.NotNil(t, entry.PreviousNumber)
		assert.Equal(t, int64(2), *entry.PreviousNumber)
	})

	t.Run("MissingActor", func(t *testing.T) {
		entry := NewGeneratedLog(counter, "", "", now)
		assert.Error(t, entry.Validate())
	})

	t.Run("GeneratedWithPreviousNumber", func(t *testing.T) {
		entry := NewGeneratedLog(counter, "u1", "", now)
		previous := int64(1)
		entry.PreviousNumber = &previous
		assert.Error(t, entry.Validate())
	})

	t.Run("CorrectedWithoutNotes", func(t *testing.T) {
		entry := NewCorrectedLog(counter, 2, "x", "a1", "", now)
		entry.Notes = nil
		assert.Error(t, entry.Validate())
	})

	t.Run("UnknownAction", func(t *testing.T) {
		entry := NewGeneratedLog(counter, "u1", "", now)
		entry.Action = "deleted"
		assert.Error(t, entry.Validate())
	})
}

func TestNumberLogFilter(t *testing.T) {
	now := time.Now().UTC()
	counter := NewSequenceCounter("OF", 2025, now)
	counter.CurrentNumber = 1
	entry := NewGeneratedLog(counter, "u1", "", now)

	code, year, actor := "OF", 2025, "u1"
	otherYear := 2024
	corrected := NumberActionCorrected

	assert.True(t, NumberLogFilter{}.Matches(entry))
	assert.True(t, NumberLogFilter{DocumentTypeCode: &code, Year: &year, ActorID: &actor}.Matches(entry))
	assert.False(t, NumberLogFilter{Year: &otherYear}.Matches(entry))
	assert.False(t, NumberLogFilter{Action: &corrected}.Matches(entry))

	scope, ok := NumberLogFilter{DocumentTypeCode: &code, Year: &year}.Scope()
	assert.True(t, ok)
	assert.Equal(t, "OF_2025", scope)

	_, ok = NumberLogFilter{DocumentTypeCode: &code}.Scope()
	assert.False(t, ok)
}

func TestNumberLogStatistics_Add(t *testing.T) {
	now := time.Now().UTC()
	counter := NewSequenceCounter("OF", 2025, now)

	stats := NewNumberLogStatistics()
	stats.Add(NewGeneratedLog(counter, "u1", "Maria", now))
	stats.Add(NewGeneratedLog(counter, "u2", "", now))
	stats.Add(NewCorrectedLog(counter, 0, "reset", "a1", "Admin", now))

	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Generated)
	assert.Equal(t, int64(1), stats.Corrected)
	assert.Equal(t, int64(3), stats.ByDocumentType["OF"])
	assert.Equal(t, int64(1), stats.ByActor["Maria"])
	assert.Equal(t, int64(1), stats.ByActor["u2"])
}
