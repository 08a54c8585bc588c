package service

import (
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

type classification struct {
	class               rewarddomain.CreatorClass
	active              bool
	secondTierValidated bool
	reasons             []string
}

// classify decides the creator class and whether the period counts as active.
// Confirmation is sticky: a confirmed history entry wins over this period's
// diamonds.
func classify(p rewarddomain.Policy, rec rewarddomain.ActivityRecord, hist historydomain.Entry) classification {
	c := classification{class: rewarddomain.ClassBeginner}
	if hist.Confirmed || rec.Diamonds >= p.ConfirmationThreshold {
		c.class = rewarddomain.ClassConfirmed
	}

	threshold := p.Beginner
	if c.class == rewarddomain.ClassConfirmed {
		threshold = p.Confirmed
	}

	c.active = true
	if rec.LiveDays < threshold.MinDays {
		c.active = false
		c.reasons = append(c.reasons, rewarddomain.ReasonInsufficientDays)
	}
	if rec.LiveHours < threshold.MinHours {
		c.active = false
		c.reasons = append(c.reasons, rewarddomain.ReasonInsufficientHours)
	}
	if p.MinActiveDiamonds > 0 && rec.Diamonds < p.MinActiveDiamonds {
		c.active = false
		c.reasons = append(c.reasons, rewarddomain.ReasonInsufficientDiamonds)
	}

	c.secondTierValidated = p.SecondTier.Met(rec.LiveDays, rec.LiveHours)
	if rec.Diamonds >= p.SecondTierMinDiamonds && !c.secondTierValidated {
		c.reasons = append(c.reasons, rewarddomain.ReasonSecondTierNotMet)
	}

	return c
}
