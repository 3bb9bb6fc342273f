package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Durations travel as integer milliseconds in documents and on the feed,
// not as Go's nanosecond encoding.

type splitJSON struct {
	Discipline Discipline `json:"discipline"`
	TimeMS     int64      `json:"time_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (s Split) MarshalJSON() ([]byte, error) {
	return json.Marshal(splitJSON{
		Discipline: s.Discipline,
		TimeMS:     s.Time.Milliseconds(),
		Timestamp:  s.Timestamp,
	})
}

func (s *Split) UnmarshalJSON(data []byte) error {
	var aux splitJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Discipline = aux.Discipline
	s.Time = time.Duration(aux.TimeMS) * time.Millisecond
	s.Timestamp = aux.Timestamp
	return nil
}

type estimatedSplitsJSON struct {
	TreadmillMS *int64 `json:"treadmill_ms,omitempty"`
	SkiErgMS    *int64 `json:"ski_erg_ms,omitempty"`
	RowingMS    *int64 `json:"rowing_ms,omitempty"`
	TotalMS     *int64 `json:"total_ms,omitempty"`
}

func (e EstimatedSplits) MarshalJSON() ([]byte, error) {
	return json.Marshal(estimatedSplitsJSON{
		TreadmillMS: toMillis(e.Treadmill),
		SkiErgMS:    toMillis(e.SkiErg),
		RowingMS:    toMillis(e.Rowing),
		TotalMS:     toMillis(e.Total),
	})
}

func (e *EstimatedSplits) UnmarshalJSON(data []byte) error {
	var aux estimatedSplitsJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Treadmill = fromMillis(aux.TreadmillMS)
	e.SkiErg = fromMillis(aux.SkiErgMS)
	e.Rowing = fromMillis(aux.RowingMS)
	e.Total = fromMillis(aux.TotalMS)
	return nil
}

type raceResultJSON struct {
	ID          string               `json:"id"`
	PersonID    string               `json:"person_id"`
	PersonName  string               `json:"person_name"`
	Splits      [NumDisciplines]Split `json:"splits"`
	TotalTimeMS int64                `json:"total_time_ms"`
	CompletedAt time.Time            `json:"completed_at"`
	CreatedBy   string               `json:"created_by,omitempty"`
}

func (r RaceResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(raceResultJSON{
		ID:          r.ID.String(),
		PersonID:    r.PersonID.String(),
		PersonName:  r.PersonName,
		Splits:      r.Splits,
		TotalTimeMS: r.TotalTime.Milliseconds(),
		CompletedAt: r.CompletedAt,
		CreatedBy:   r.CreatedBy,
	})
}

func (r *RaceResult) UnmarshalJSON(data []byte) error {
	var aux raceResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := uuid.Parse(aux.ID)
	if err != nil {
		return err
	}
	personID, err := uuid.Parse(aux.PersonID)
	if err != nil {
		return err
	}
	r.ID = id
	r.PersonID = personID
	r.PersonName = aux.PersonName
	r.Splits = aux.Splits
	r.TotalTime = time.Duration(aux.TotalTimeMS) * time.Millisecond
	r.CompletedAt = aux.CompletedAt
	r.CreatedBy = aux.CreatedBy
	return nil
}

func toMillis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}

func fromMillis(ms *int64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}
