package service

import (
	"sort"
	"strings"
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/smallbiznis/creatorpay/pkg/textnorm"
)

type bonusInput struct {
	status       string
	diamonds     int64
	relationDate *time.Time
	periodEnd    *time.Time
	used         historydomain.TierSet

	// confirmedBefore is the history's confirmation entering the period.
	confirmedBefore bool
}

// statusMatches reports whether the status text designates a non-graduated
// beginner.
func statusMatches(p rewarddomain.BonusPolicy, status string) bool {
	folded := textnorm.Fold(status)
	if folded == "" {
		return false
	}
	for _, prefix := range p.StatusPrefixes {
		if prefix != "" && strings.HasPrefix(folded, textnorm.Fold(prefix)) {
			return true
		}
	}
	for _, marker := range p.StatusMarkers {
		if marker != "" && strings.Contains(folded, textnorm.Fold(marker)) {
			return true
		}
	}
	return false
}

// withinWindow reports whether periodEnd is at most windowDays after the
// relation date. Unknown dates are never within the window.
func withinWindow(relationDate, periodEnd *time.Time, windowDays int) bool {
	if relationDate == nil || periodEnd == nil {
		return false
	}
	rel := truncateDay(*relationDate)
	end := truncateDay(*periodEnd)
	return !end.After(rel.AddDate(0, 0, windowDays))
}

// evaluateBonus returns the lifetime bonus due this period and the tier it
// consumes. Only creators not yet confirmed when the period starts qualify; a
// beginner crossing the confirmation threshold this period can still collect
// the milestone it reached. At most one tier is paid: the highest milestone whose range
// contains diamonds. When that tier was already paid, nothing is paid unless
// fallthrough is enabled, in which case the highest unused lower tier is.
func evaluateBonus(p rewarddomain.BonusPolicy, in bonusInput) (amount int64, tier int) {
	if in.confirmedBefore {
		return 0, 0
	}
	if !statusMatches(p, in.status) {
		return 0, 0
	}
	if !withinWindow(in.relationDate, in.periodEnd, p.WindowDays) {
		return 0, 0
	}

	milestones := make([]rewarddomain.Milestone, len(p.Milestones))
	copy(milestones, p.Milestones)
	sort.Slice(milestones, func(i, j int) bool { return milestones[i].Tier > milestones[j].Tier })

	reached := false
	for _, m := range milestones {
		if !reached {
			if in.diamonds < m.Min || in.diamonds > m.Max {
				continue
			}
			reached = true
		} else if in.diamonds < m.Min {
			continue
		}

		if !in.used.Has(m.Tier) {
			return m.Amount, m.Tier
		}
		if !p.Fallthrough {
			return 0, 0
		}
	}
	return 0, 0
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
