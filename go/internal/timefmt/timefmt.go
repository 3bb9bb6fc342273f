// Package timefmt converts millisecond durations to display strings and
// discipline-specific pace values. Pure functions, no state.
package timefmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Nominal segment distances in meters, used only for pace display.
const (
	TreadmillDistanceM = 1600
	SkiErgDistanceM    = 1000
	RowingDistanceM    = 1000
)

// ErrInvalidDuration is returned when a duration string cannot be parsed.
var ErrInvalidDuration = errors.New("invalid duration")

// Format renders a duration as M:SS.t, or H:MM:SS.t from one hour up.
// Negative durations render as their absolute value; callers display the
// sign separately (ahead/behind).
func Format(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	tenths := d.Milliseconds() / 100
	secs := tenths / 10
	tenths %= 10

	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%d", h, m, s, tenths)
	}
	return fmt.Sprintf("%d:%02d.%d", m, s, tenths)
}

// Parse reads MM:SS or HH:MM:SS, fractional seconds allowed. Any negative
// or non-numeric component makes the whole value invalid.
func Parse(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var h, m int64
	var err error
	if len(parts) == 3 {
		h, err = parseComponent(parts[0])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		parts = parts[1:]
	}
	m, err = parseComponent(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	sec, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	ms := (h*3600+m*60)*1000 + int64(sec*1000)
	return time.Duration(ms) * time.Millisecond, nil
}

func parseComponent(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, ErrInvalidDuration
	}
	return v, nil
}

// TreadmillSpeed converts a treadmill segment duration to km/h over the
// nominal distance. Zero duration yields zero.
func TreadmillSpeed(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return (TreadmillDistanceM / 1000.0) / d.Hours()
}

// PacePer500 converts a segment duration over distanceM meters to the
// equivalent time per 500m.
func PacePer500(d time.Duration, distanceM int) time.Duration {
	if distanceM <= 0 {
		return 0
	}
	return time.Duration(float64(d) * 500.0 / float64(distanceM))
}

// Pace renders the discipline-specific pace string for a segment duration.
func Pace(disc models.Discipline, d time.Duration) string {
	switch disc {
	case models.DisciplineTreadmill:
		return fmt.Sprintf("%.1f km/h", TreadmillSpeed(d))
	case models.DisciplineSkiErg:
		return Format(PacePer500(d, SkiErgDistanceM)) + " /500m"
	case models.DisciplineRowing:
		return Format(PacePer500(d, RowingDistanceM)) + " /500m"
	}
	return Format(d)
}
