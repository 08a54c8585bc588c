// Package csvstore reads and writes history as CSV, in the column layout
// operators already keep their history.csv files in.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
)

var Columns = []string{"username", "b1_used", "b2_used", "b3_used", "confirmed_150k", "first_relation_date"}

var ErrMissingKeyColumn = errors.New("history_csv_missing_username")

const dateLayout = "2006-01-02"

var dateLayouts = []string{dateLayout, "2006-01-02 15:04:05", time.RFC3339, "02/01/2006", "2006/01/02"}

// Decode reads history rows. Unknown columns are ignored, missing flag
// columns read as false, and duplicate usernames are merged.
func Decode(r io.Reader) ([]historydomain.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	index := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "creator_key" {
			name = "username"
		}
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	if _, ok := index["username"]; !ok {
		return nil, ErrMissingKeyColumn
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	snapshot := historydomain.Snapshot{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("history csv line %d: %w", line, err)
		}

		key := cell(row, "username")
		if key == "" {
			continue
		}
		var tiers historydomain.TierSet
		for tier, col := range []string{"b1_used", "b2_used", "b3_used"} {
			if ParseBool(cell(row, col)) {
				tiers = tiers.With(tier + 1)
			}
		}
		snapshot.Apply(historydomain.Entry{
			CreatorKey:        key,
			BonusTiersUsed:    tiers,
			Confirmed:         ParseBool(cell(row, "confirmed_150k")),
			FirstRelationDate: parseDate(cell(row, "first_relation_date")),
		})
	}

	return snapshot.Entries(), nil
}

// Encode writes entries ordered by key.
func Encode(w io.Writer, entries []historydomain.Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, e := range historydomain.NewSnapshot(entries...).Entries() {
		date := ""
		if e.FirstRelationDate != nil {
			date = e.FirstRelationDate.Format(dateLayout)
		}
		if err := writer.Write([]string{
			e.CreatorKey,
			formatBool(e.BonusTiersUsed.Has(1)),
			formatBool(e.BonusTiersUsed.Has(2)),
			formatBool(e.BonusTiersUsed.Has(3)),
			formatBool(e.Confirmed),
			date,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ParseBool accepts true/1/yes/y/t (and their French forms); anything else is false.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "t", "oui", "vrai":
		return true
	}
	return false
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
