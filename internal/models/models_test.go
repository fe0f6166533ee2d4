package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStartTime(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	b := Booking{Date: "2030-06-03", Time: "14:00"}

	start, err := b.StartTime(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 3, 14, 0, 0, 0, loc), start)

	b.Date = "03.06.2030"
	_, err = b.StartTime(loc)
	assert.Error(t, err, "persisted records carry the storage layout only")
}

func TestBookingStartTimeHonorsLocation(t *testing.T) {
	b := Booking{Date: "2030-06-03", Time: "19:00"}

	start, err := b.StartTime(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 19, start.Hour())
	assert.Equal(t, time.UTC, start.Location())
}
