package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/models"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00.0"},
		{61500 * time.Millisecond, "1:01.5"},
		{900000 * time.Millisecond, "15:00.0"},
		{3600000 * time.Millisecond, "1:00:00.0"},
		{3723456 * time.Millisecond, "1:02:03.4"},
		{-61500 * time.Millisecond, "1:01.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.d), "Format(%v)", tt.d)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15:00", 15 * time.Minute},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"0:30.5", 30500 * time.Millisecond},
		{" 2:05 ", 125 * time.Second},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		assert.Equal(t, tt.want, got, "Parse(%q)", tt.in)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "90", "1:2:3:4", "-1:00", "1:-30", "a:bc", "1:xx"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidDuration, "Parse(%q)", in)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	// parse(format(d)) must agree with d within one display unit (a tenth
	// of a second).
	durations := []time.Duration{
		0,
		137 * time.Millisecond,
		59999 * time.Millisecond,
		900000 * time.Millisecond,
		2500000 * time.Millisecond,
		5*time.Hour + 7*time.Minute + 9*time.Second,
	}
	for _, d := range durations {
		got, err := Parse(Format(d))
		require.NoError(t, err)
		diff := d - got
		if diff < 0 {
			diff = -diff
		}
		assert.Less(t, diff, 100*time.Millisecond, "round trip of %v", d)
	}
}

func TestPace(t *testing.T) {
	// 1600m in 8 minutes is 12 km/h on the treadmill.
	assert.Equal(t, "12.0 km/h", Pace(models.DisciplineTreadmill, 8*time.Minute))
	// 1000m in 4 minutes rows out to 2:00.0 per 500m.
	assert.Equal(t, "2:00.0 /500m", Pace(models.DisciplineRowing, 4*time.Minute))
	assert.Equal(t, "2:00.0 /500m", Pace(models.DisciplineSkiErg, 4*time.Minute))
}

func TestPacePer500(t *testing.T) {
	assert.Equal(t, 2*time.Minute, PacePer500(4*time.Minute, 1000))
	assert.Equal(t, time.Duration(0), PacePer500(4*time.Minute, 0))
}
