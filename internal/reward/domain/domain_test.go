package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodEnd(t *testing.T) {
	cases := []struct {
		label string
		want  time.Time
	}{
		{"2025-10", time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)},
		{"2024/02", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"11/2025", time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)},
		{"2025-10-01 - 2025-10-15", time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)},
		{"01/10/2025 au 20/10/2025", time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)},
		{"2025-12-14", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := PeriodEnd(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.want, got, tc.label)
	}

	for _, bad := range []string{"", "octobre", "2025-13", "2025-10-01 - later"} {
		_, err := PeriodEnd(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
	}
}

func TestNormalize(t *testing.T) {
	raws := []RawRecord{
		{Period: " 2025-10 ", Username: " alice ", Diamonds: Float64(1234.9), LiveHours: Float64(20), LiveDays: Float64(10)},
		{Period: "2025-10", CreatorID: "42", Username: "bob", Diamonds: Float64(-3), LiveHours: Float64(math.NaN()), LiveDays: Float64(3)},
	}
	recs, events, err := Normalize(raws, true)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-10", recs[0].Period)
	assert.Equal(t, "alice", recs[0].Key())
	assert.Equal(t, int64(1234), recs[0].Diamonds)
	assert.Equal(t, "42", recs[1].Key())
	assert.Zero(t, recs[1].Diamonds)
	assert.Zero(t, recs[1].LiveHours)
	require.Len(t, events, 2)
	assert.Equal(t, FieldDiamonds, events[0].Field)
	assert.Equal(t, FieldLiveHours, events[1].Field)
}

func TestNormalizeOversizedDiamonds(t *testing.T) {
	raws := []RawRecord{
		{Period: "2025-10", Username: "alice", Diamonds: Float64(1e20), LiveHours: Float64(20), LiveDays: Float64(10)},
		{Period: "2025-10", Username: "bob", Diamonds: Float64(MaxDiamonds), LiveHours: Float64(20), LiveDays: Float64(10)},
		{Period: "2025-10", Username: "carol", Diamonds: Float64(MaxDiamonds * 2), LiveHours: Float64(1e20), LiveDays: Float64(10)},
	}
	recs, events, err := Normalize(raws, true)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Zero(t, recs[0].Diamonds)
	assert.Equal(t, int64(MaxDiamonds), recs[1].Diamonds)
	assert.Zero(t, recs[2].Diamonds)
	assert.Equal(t, 1e20, recs[2].LiveHours)
	for _, rec := range recs {
		assert.GreaterOrEqual(t, rec.Diamonds, int64(0))
	}

	require.Len(t, events, 2)
	assert.Equal(t, CoercionEvent{Row: 0, Key: "alice", Field: FieldDiamonds, Raw: "1e+20"}, events[0])
	assert.Equal(t, "carol", events[1].Key)
	assert.Equal(t, FieldDiamonds, events[1].Field)
}

func TestNormalizeMissingFields(t *testing.T) {
	raws := []RawRecord{{Period: "2025-10", Username: "alice", Diamonds: Float64(10)}}

	_, _, err := Normalize(raws, true)
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, FieldLiveHours, missing.Field)
	assert.ErrorIs(t, err, ErrMissingField)

	recs, events, err := Normalize(raws, false)
	require.NoError(t, err)
	assert.Zero(t, recs[0].LiveDays)
	assert.Len(t, events, 2)

	_, _, err = Normalize([]RawRecord{{Period: "2025-10", Diamonds: Float64(1)}}, false)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	overlap := DefaultPolicy()
	overlap.Tier1[1].Min = overlap.Tier1[0].Max
	assert.ErrorIs(t, overlap.Validate(), ErrInvalidPolicy)

	mismatch := DefaultPolicy()
	mismatch.Tier2 = mismatch.Tier2[:len(mismatch.Tier2)-1]
	assert.ErrorIs(t, mismatch.Validate(), ErrInvalidPolicy)

	rounding := DefaultPolicy()
	rounding.Rounding = RoundingPolicy{GroupTotals: true}
	assert.ErrorIs(t, rounding.Validate(), ErrInvalidPolicy)

	milestones := DefaultPolicy()
	milestones.Bonus.Milestones = append(milestones.Bonus.Milestones, Milestone{Tier: 1, Min: 1, Max: 2, Amount: 1})
	assert.ErrorIs(t, milestones.Validate(), ErrInvalidPolicy)
}

func TestTablesTotals(t *testing.T) {
	tables := Tables{
		Creators: []CreatorResult{{TotalReward: 100}, {TotalReward: 50}},
		Agents:   []GroupResult{{TotalReward: 7}},
		Managers: []GroupResult{{TotalReward: 3}, {TotalReward: 4}},
	}
	c, a, m := tables.Totals()
	assert.Equal(t, int64(150), c)
	assert.Equal(t, int64(7), a)
	assert.Equal(t, int64(7), m)
}
