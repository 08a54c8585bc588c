package service

import (
	"github.com/shopspring/decimal"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

// lookupBracket returns the flat amount of the bracket containing diamonds,
// or the high-volume percentage once the threshold is reached.
func lookupBracket(table []rewarddomain.Bracket, hv rewarddomain.HighVolumeRule, diamonds int64) int64 {
	if diamonds >= hv.Threshold {
		return applyRate(diamonds, hv.Rate)
	}
	for _, b := range table {
		if diamonds >= b.Min && diamonds <= b.Max {
			return b.Amount
		}
	}
	return 0
}

// resolveTierReward pays from exactly one table. Tier 2 needs an active
// creator at or above the second-tier diamond floor with the second-tier
// activity validated; any other active creator is paid from Tier 1.
func resolveTierReward(p rewarddomain.Policy, diamonds int64, active, secondTier bool) (tier1, tier2 int64) {
	if !active {
		return 0, 0
	}
	if diamonds >= p.SecondTierMinDiamonds && secondTier {
		return 0, lookupBracket(p.Tier2, p.HighVolume, diamonds)
	}
	return lookupBracket(p.Tier1, p.HighVolume, diamonds), 0
}

// tierReached depends on diamonds alone.
func tierReached(p rewarddomain.Policy, diamonds int64) int {
	for tier := len(p.TierReached); tier > 0; tier-- {
		if diamonds >= p.TierReached[tier-1] {
			return tier
		}
	}
	return 0
}

func applyRate(amount int64, rate float64) int64 {
	return roundMoney(decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)))
}

// roundMoney rounds half away from zero to whole currency units.
func roundMoney(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// floorTo rounds v down to a multiple of unit.
func floorTo(v, unit int64) int64 {
	if unit <= 0 {
		return v
	}
	return v - v%unit
}
