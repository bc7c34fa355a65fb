package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manila(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	return loc
}

func TestParseSpan(t *testing.T) {
	loc := manila(t)
	tests := []struct {
		text    string
		start   string
		end     string
		nextDay bool
		allDay  bool
	}{
		{text: "6:00 AM", start: "06:00", end: "07:00"},
		{text: "06:00", start: "06:00", end: "07:00"},
		{text: "6AM", start: "06:00", end: "07:00"},
		{text: "6:30 p.m.", start: "18:30", end: "19:30"},
		{text: "6:00 AM - 8:00 PM", start: "06:00", end: "20:00"},
		{text: "6:00 - 8:00 PM", start: "18:00", end: "20:00"},
		{text: "11:00 - 1:00 PM", start: "11:00", end: "13:00"},
		{text: "10:00 PM - 2:00 AM", start: "22:00", end: "02:00", nextDay: true},
		{text: "Noon", start: "12:00", end: "13:00"},
		{text: "Starts 4pm onwards", start: "16:00", end: "17:00"},
		{text: "Whole day", allDay: true},
		{text: "", allDay: true},
		{text: "Day 2", allDay: true},
		{text: "25:00", allDay: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			span, err := ParseSpan("2025-01-19", tt.text, loc)
			require.NoError(t, err)

			if tt.allDay {
				assert.True(t, span.AllDay)
				assert.Equal(t, time.Date(2025, 1, 19, 0, 0, 0, 0, loc), span.Start)
				assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, loc), span.End)
				return
			}
			assert.False(t, span.AllDay)
			assert.Equal(t, "2025-01-19 "+tt.start, span.Start.Format("2006-01-02 15:04"))
			endDay := "2025-01-19 "
			if tt.nextDay {
				endDay = "2025-01-20 "
			}
			assert.Equal(t, endDay+tt.end, span.End.Format("2006-01-02 15:04"))
			assert.Equal(t, loc, span.Start.Location())
		})
	}
}

func TestParseSpan_BadDate(t *testing.T) {
	_, err := ParseSpan("19 January", "6:00 AM", time.UTC)
	assert.Error(t, err)
}

func TestFormatSpan(t *testing.T) {
	loc := manila(t)
	s, err := ParseSpan("2025-01-19", "6:00 AM - 8:00 PM", loc)
	require.NoError(t, err)
	assert.Equal(t, "6:00 AM - 8:00 PM", FormatSpan(s, loc))

	s, err = ParseSpan("2025-01-19", "18:00", loc)
	require.NoError(t, err)
	assert.Equal(t, "6:00 PM", FormatSpan(s, loc))

	assert.Equal(t, "All day", FormatSpan(Span{AllDay: true}, loc))
}
