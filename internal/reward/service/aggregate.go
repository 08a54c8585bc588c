package service

import (
	"sort"

	"github.com/shopspring/decimal"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

// commission is the percentage component on active diamonds: nothing below
// the floor, the base rate up to the cap, and the excess rate above it.
func commission(p rewarddomain.CommissionPolicy, active int64) int64 {
	if active < p.Floor {
		return 0
	}
	base := decimal.NewFromFloat(p.Rate)
	if active <= p.Cap {
		return roundMoney(decimal.NewFromInt(active).Mul(base))
	}
	capped := decimal.NewFromInt(p.Cap).Mul(base)
	excess := decimal.NewFromInt(active - p.Cap).Mul(decimal.NewFromFloat(p.ExcessRate))
	return roundMoney(capped.Add(excess))
}

type groupKey struct {
	period string
	key    string
}

// aggregate reduces the creators table into one row per (period, key). Each
// creator contributes the flat bonus of its tier only, never the sum of the
// tiers below it. Every non-zero contribution is also returned as an event,
// ordered like the rows and then by creator.
func aggregate(p rewarddomain.Policy, creators []rewarddomain.CreatorResult, keyOf func(rewarddomain.CreatorResult) string, flat rewarddomain.GroupBonus) ([]rewarddomain.GroupResult, []rewarddomain.GroupEvent) {
	rows := map[groupKey]*rewarddomain.GroupResult{}
	events := []rewarddomain.GroupEvent{}

	for _, c := range creators {
		k := groupKey{period: c.Period, key: keyOf(c)}
		row, ok := rows[k]
		if !ok {
			row = &rewarddomain.GroupResult{Period: k.period, Key: k.key}
			rows[k] = row
		}

		row.Creators++
		row.DiamondsTotal += c.Diamonds
		if c.Active {
			row.ActiveCreators++
			row.DiamondsActive += c.Diamonds
		}

		tier := c.TierReached
		if p.GroupBonusBasis == rewarddomain.BasisTierPaid {
			tier = c.BonusTierPaid
		}
		switch tier {
		case 2:
			row.Tier2Creators++
		case 3:
			row.Tier3Creators++
		}
		if amount := flat.Amount(tier); amount > 0 {
			row.FlatBonus += amount
			events = append(events, rewarddomain.GroupEvent{
				Period: k.period, Key: k.key, Creator: c.CreatorKey, Tier: tier, Amount: amount,
			})
		}
	}

	out := make([]rewarddomain.GroupResult, 0, len(rows))
	for _, row := range rows {
		row.Loss = row.DiamondsTotal - row.DiamondsActive
		row.Commission = commission(p.Commission, row.DiamondsActive)
		row.TotalReward = row.Commission + row.FlatBonus
		if p.Rounding.GroupTotals {
			row.TotalReward = floorTo(row.TotalReward, p.Rounding.Unit)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].Key < out[j].Key
	})
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Creator < b.Creator
	})
	return out, events
}

func byAgent(c rewarddomain.CreatorResult) string { return c.Agent }

func byGroup(c rewarddomain.CreatorResult) string { return c.Group }
