// Package domain holds the reward engine's records, results and policy.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Required record fields.
const (
	FieldIdentity  = "identity"
	FieldDiamonds  = "diamonds"
	FieldLiveHours = "live_hours"
	FieldLiveDays  = "live_days"
)

// MaxDiamonds is the largest diamond count taken as given. Anything above it
// cannot be held exactly and is coerced to 0.
const MaxDiamonds = 1 << 53

// RawRecord is the shape handed over by import collaborators. Numeric fields
// are pointers so that an absent value can be told apart from zero.
type RawRecord struct {
	Period       string     `json:"period"`
	CreatorID    string     `json:"creator_id,omitempty"`
	Username     string     `json:"username"`
	Group        string     `json:"group,omitempty"`
	Agent        string     `json:"agent,omitempty"`
	RelationDate *time.Time `json:"relation_date,omitempty"`
	Diamonds     *float64   `json:"diamonds"`
	LiveHours    *float64   `json:"live_hours"`
	LiveDays     *float64   `json:"live_days"`
	Status       string     `json:"status,omitempty"`
}

// ActivityRecord is one creator's activity for one period.
type ActivityRecord struct {
	Period       string
	CreatorID    string
	Username     string
	Group        string
	Agent        string
	RelationDate *time.Time
	Diamonds     int64
	LiveHours    float64
	LiveDays     float64
	Status       string
}

// Key returns the stable creator identity: creator id when present, username otherwise.
func (r ActivityRecord) Key() string {
	if id := strings.TrimSpace(r.CreatorID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Username)
}

// CoercionEvent records a value that was corrected instead of rejected.
type CoercionEvent struct {
	Row   int    `json:"row"`
	Key   string `json:"key"`
	Field string `json:"field"`
	Raw   string `json:"raw"`
}

func (e CoercionEvent) String() string {
	return fmt.Sprintf("row %d (%s): %s=%q coerced", e.Row, e.Key, e.Field, e.Raw)
}

// Normalize converts raw records into activity records. With strict set, a
// missing identity or numeric field fails the whole batch; otherwise missing
// numbers become 0 and are reported as coercions. Negative and non-finite
// numbers, and diamond counts above MaxDiamonds, always become 0.
func Normalize(raws []RawRecord, strict bool) ([]ActivityRecord, []CoercionEvent, error) {
	records := make([]ActivityRecord, 0, len(raws))
	var events []CoercionEvent

	for i, raw := range raws {
		rec := ActivityRecord{
			Period:       strings.TrimSpace(raw.Period),
			CreatorID:    strings.TrimSpace(raw.CreatorID),
			Username:     strings.TrimSpace(raw.Username),
			Group:        strings.TrimSpace(raw.Group),
			Agent:        strings.TrimSpace(raw.Agent),
			RelationDate: raw.RelationDate,
			Status:       strings.TrimSpace(raw.Status),
		}
		key := rec.Key()
		if key == "" {
			return nil, nil, &MissingFieldError{Row: i, Field: FieldIdentity}
		}

		fields := []struct {
			name  string
			value *float64
		}{
			{FieldDiamonds, raw.Diamonds},
			{FieldLiveHours, raw.LiveHours},
			{FieldLiveDays, raw.LiveDays},
		}
		values := make([]float64, len(fields))
		for j, f := range fields {
			if f.value == nil {
				if strict {
					return nil, nil, &MissingFieldError{Row: i, Key: key, Field: f.name}
				}
				events = append(events, CoercionEvent{Row: i, Key: key, Field: f.name, Raw: ""})
				continue
			}
			v := *f.value
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || (f.name == FieldDiamonds && v > MaxDiamonds) {
				events = append(events, CoercionEvent{Row: i, Key: key, Field: f.name, Raw: fmt.Sprint(v)})
				continue
			}
			values[j] = v
		}

		rec.Diamonds = int64(math.Floor(values[0]))
		rec.LiveHours = values[1]
		rec.LiveDays = values[2]
		records = append(records, rec)
	}

	return records, events, nil
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
