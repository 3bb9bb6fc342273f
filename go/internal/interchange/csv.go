// Package interchange round-trips race results through a CSV format keyed
// by the result id / person id pair. Re-importing a previously exported id
// never duplicates the record.
package interchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/store"
)

var header = []string{
	"result_id", "person_id", "person_name",
	"treadmill_ms", "ski_erg_ms", "rowing_ms", "total_ms",
	"completed_at",
}

// Export writes the result set as CSV, durations in integer milliseconds.
func Export(w io.Writer, results []models.RaceResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		rec := []string{
			r.ID.String(),
			r.PersonID.String(),
			r.PersonName,
			formatSplit(r, models.DisciplineTreadmill),
			formatSplit(r, models.DisciplineSkiErg),
			formatSplit(r, models.DisciplineRowing),
			strconv.FormatInt(r.TotalTime.Milliseconds(), 10),
			r.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write result %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatSplit(r models.RaceResult, d models.Discipline) string {
	t, ok := r.SplitTime(d)
	if !ok {
		return ""
	}
	return strconv.FormatInt(t.Milliseconds(), 10)
}

// Stats summarizes one import run.
type Stats struct {
	Imported int
	Skipped  int
}

// Import reads exported CSV back into the store. Rows whose result id
// already exists are skipped, which makes re-import of a previous export a
// no-op.
func Import(ctx context.Context, r io.Reader, st store.Store) (Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	if _, err := cr.Read(); err != nil {
		return Stats{}, fmt.Errorf("read header: %w", err)
	}

	var stats Stats
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}

		result, err := parseRecord(rec)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}

		exists, err := st.HasResult(ctx, result.ID)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if exists {
			stats.Skipped++
			continue
		}
		if err := st.UpsertResult(ctx, result); err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Imported++
	}

	log.Info().
		Int("imported", stats.Imported).
		Int("skipped", stats.Skipped).
		Msg("result import finished")
	return stats, nil
}

func parseRecord(rec []string) (models.RaceResult, error) {
	id, err := uuid.Parse(rec[0])
	if err != nil {
		return models.RaceResult{}, fmt.Errorf("result_id: %w", err)
	}
	personID, err := uuid.Parse(rec[1])
	if err != nil {
		return models.RaceResult{}, fmt.Errorf("person_id: %w", err)
	}

	var splits [models.NumDisciplines]models.Split
	for i, d := range models.Disciplines {
		t, err := parseMillis(rec[3+i])
		if err != nil {
			return models.RaceResult{}, fmt.Errorf("%s: %w", d, err)
		}
		splits[i] = models.Split{Discipline: d, Time: t}
	}

	total, err := parseMillis(rec[6])
	if err != nil {
		return models.RaceResult{}, fmt.Errorf("total_ms: %w", err)
	}

	completedAt, err := time.Parse(time.RFC3339, rec[7])
	if err != nil {
		return models.RaceResult{}, fmt.Errorf("completed_at: %w", err)
	}

	return models.RaceResult{
		ID:          id,
		PersonID:    personID,
		PersonName:  rec[2],
		Splits:      splits,
		TotalTime:   total,
		CompletedAt: completedAt,
	}, nil
}

func parseMillis(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("invalid milliseconds %q", s)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
