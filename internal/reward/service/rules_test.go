package service

import (
	"testing"
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolveTierReward(t *testing.T) {
	p := rewarddomain.DefaultPolicy()

	cases := []struct {
		name       string
		diamonds   int64
		active     bool
		secondTier bool
		tier1      int64
		tier2      int64
	}{
		{"below first bracket", 34_999, true, false, 0, 0},
		{"first bracket", 35_000, true, false, 1000, 0},
		{"second tier below its floor pays tier1", 149_999, true, true, 2500, 0},
		{"tier1 at 160k", 160_000, true, false, 5000, 0},
		{"tier2 at 160k", 160_000, true, true, 0, 6000},
		{"tier1 at 250k", 250_000, true, false, 6000, 0},
		{"tier2 at 250k", 250_000, true, true, 0, 7999},
		{"tier1 at 750k", 750_000, true, false, 21000, 0},
		{"tier2 at 750k", 750_000, true, true, 0, 26999},
		{"tier1 last bracket", 1_999_999, true, false, 44999, 0},
		{"tier2 last bracket", 1_999_999, true, true, 0, 59999},
		{"tier1 high volume", 2_000_000, true, false, 80_000, 0},
		{"tier2 high volume", 2_500_000, true, true, 0, 100_000},
		{"inactive", 500_000, false, true, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier1, tier2 := resolveTierReward(p, tc.diamonds, tc.active, tc.secondTier)
			assert.Equal(t, tc.tier1, tier1)
			assert.Equal(t, tc.tier2, tier2)
		})
	}
}

func TestLookupBracketHighVolumeRounds(t *testing.T) {
	p := rewarddomain.DefaultPolicy()
	// 4% of 2,000,013 is 80,000.52.
	assert.Equal(t, int64(80_001), lookupBracket(p.Tier1, p.HighVolume, 2_000_013))
}

func TestCommission(t *testing.T) {
	p := rewarddomain.DefaultPolicy().Commission

	cases := []struct {
		active int64
		want   int64
	}{
		{0, 0},
		{199_999, 0},
		{200_000, 4000},
		{250_000, 5000},
		{4_000_000, 80_000},
		{5_000_000, 110_000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, commission(p, tc.active), "active=%d", tc.active)
	}
}

func TestEvaluateBonus(t *testing.T) {
	p := rewarddomain.DefaultPolicy().Bonus
	rel := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		diamonds  int64
		used      historydomain.TierSet
		confirmed bool
		amount    int64
		tier      int
	}{
		{"below first milestone", 74_999, 0, false, 0, 0},
		{"first milestone", 75_000, 0, false, 500, 1},
		{"first milestone top", 149_999, 0, false, 500, 1},
		{"second milestone", 150_000, 0, false, 1088, 2},
		{"third milestone", 500_000, 0, false, 3000, 3},
		{"third milestone upper bound", 2_000_000, 0, false, 3000, 3},
		{"above every milestone", 2_000_001, 0, false, 0, 0},
		{"tier already paid", 160_000, historydomain.TierSet(0).With(2), false, 0, 0},
		{"confirmed before the period", 160_000, 0, true, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, tier := evaluateBonus(p, bonusInput{
				status:          "Débutant non diplômé 90j",
				diamonds:        tc.diamonds,
				relationDate:    &rel,
				periodEnd:       &end,
				used:            tc.used,
				confirmedBefore: tc.confirmed,
			})
			assert.Equal(t, tc.amount, amount)
			assert.Equal(t, tc.tier, tier)
		})
	}
}

func TestWithinWindow(t *testing.T) {
	rel := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		v := rel.AddDate(0, 0, days)
		return &v
	}
	lateOnEdge := time.Date(2025, 12, 30, 23, 59, 59, 0, time.UTC)

	assert.True(t, withinWindow(&rel, at(0), 90))
	assert.True(t, withinWindow(&rel, at(90), 90))
	assert.True(t, withinWindow(&rel, &lateOnEdge, 90))
	assert.False(t, withinWindow(&rel, at(91), 90))
	assert.False(t, withinWindow(nil, at(10), 90))
	assert.False(t, withinWindow(&rel, nil, 90))
}
