package service

import (
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

// buildCreator evaluates one record against the creator's current history and
// returns the result row together with the updated history entry.
func buildCreator(p rewarddomain.Policy, rec rewarddomain.ActivityRecord, hist historydomain.Entry, periodEnd *time.Time) (rewarddomain.CreatorResult, historydomain.Entry) {
	c := classify(p, rec, hist)
	tier1, tier2 := resolveTierReward(p, rec.Diamonds, c.active, c.secondTierValidated)
	relation := historydomain.EarliestDate(rec.RelationDate, hist.FirstRelationDate)

	bonus, tierPaid := evaluateBonus(p.Bonus, bonusInput{
		confirmedBefore: hist.Confirmed,
		status:          rec.Status,
		diamonds:        rec.Diamonds,
		relationDate:    relation,
		periodEnd:       periodEnd,
		used:            hist.BonusTiersUsed,
	})

	total := tier1 + tier2 + bonus
	if p.Rounding.CreatorHighVolume && rec.Diamonds >= p.HighVolume.Threshold {
		total = floorTo(total, p.Rounding.Unit)
	}

	row := rewarddomain.CreatorResult{
		Period:              rec.Period,
		CreatorKey:          rec.Key(),
		CreatorID:           rec.CreatorID,
		Username:            rec.Username,
		Group:               rec.Group,
		Agent:               rec.Agent,
		Diamonds:            rec.Diamonds,
		LiveHours:           rec.LiveHours,
		LiveDays:            rec.LiveDays,
		Class:               c.class,
		Active:              c.active,
		Reasons:             c.reasons,
		TierReached:         tierReached(p, rec.Diamonds),
		SecondTierValidated: c.secondTierValidated,
		RewardTier1:         tier1,
		RewardTier2:         tier2,
		BonusAmount:         bonus,
		BonusTierPaid:       tierPaid,
		TotalReward:         total,
	}
	if relation != nil {
		row.RelationDate = relation.Format("2006-01-02")
	}

	delta := historydomain.Entry{
		CreatorKey:        rec.Key(),
		BonusTiersUsed:    historydomain.TierSet(0).With(tierPaid),
		Confirmed:         c.class == rewarddomain.ClassConfirmed,
		FirstRelationDate: rec.RelationDate,
	}
	return row, historydomain.Merge(hist, delta)
}
