package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

// Batch is one computation input.
type Batch struct {
	Records []rewarddomain.ActivityRecord
	// PeriodEnd overrides the end date derived from each record's period label.
	PeriodEnd *time.Time
}

// Engine evaluates reward batches under a fixed policy. It holds no state
// between calls and never touches storage.
type Engine struct {
	policy rewarddomain.Policy
}

func NewEngine(policy rewarddomain.Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the policy the engine evaluates with.
func (e *Engine) Policy() rewarddomain.Policy {
	return e.policy
}

// Compute builds the three reward tables and the history deltas for batch.
// Records are evaluated in period-end order and each one sees the history
// produced by the records before it, so a creator present in several periods
// of the same batch never consumes a bonus tier twice.
func (e *Engine) Compute(batch Batch, history historydomain.Snapshot) (*rewarddomain.Computation, error) {
	records := batch.Records
	if len(records) == 0 {
		return nil, rewarddomain.ErrEmptyBatch
	}

	type seenKey struct{ period, key string }
	seen := make(map[seenKey]struct{}, len(records))
	for i, rec := range records {
		key := rec.Key()
		if key == "" {
			return nil, &rewarddomain.MissingFieldError{Row: i, Field: rewarddomain.FieldIdentity}
		}
		k := seenKey{period: periodIdentity(rec.Period), key: key}
		if _, dup := seen[k]; dup {
			return nil, &rewarddomain.DuplicateRecordError{Period: rec.Period, Key: key}
		}
		seen[k] = struct{}{}
	}

	result := &rewarddomain.Computation{}
	ends := make([]*time.Time, len(records))
	for i, rec := range records {
		if batch.PeriodEnd != nil {
			end := truncateDay(*batch.PeriodEnd)
			ends[i] = &end
			continue
		}
		end, err := rewarddomain.PeriodEnd(rec.Period)
		if err != nil {
			result.Coercions = append(result.Coercions, rewarddomain.CoercionEvent{
				Row: i, Key: rec.Key(), Field: "period", Raw: rec.Period,
			})
			continue
		}
		ends[i] = &end
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := ends[order[a]], ends[order[b]]
		switch {
		case ea == nil:
			return false
		case eb == nil:
			return true
		}
		return ea.Before(*eb)
	})

	working := historydomain.Snapshot{}
	touched := []string{}
	result.Creators = make([]rewarddomain.CreatorResult, len(records))
	for _, idx := range order {
		rec := records[idx]
		key := rec.Key()

		current, ok := working[key]
		if !ok {
			current = history.Get(key)
			touched = append(touched, key)
		}

		row, updated := buildCreator(e.policy, rec, current, ends[idx])
		result.Creators[idx] = row
		working[key] = updated
	}

	sort.Strings(touched)
	result.Deltas = make([]rewarddomain.HistoryDelta, 0, len(touched))
	for _, key := range touched {
		before := history.Get(key)
		after := working[key]
		delta := rewarddomain.HistoryDelta{
			CreatorKey:      key,
			Before:          before,
			After:           after,
			BecameConfirmed: after.Confirmed && !before.Confirmed,
		}
		if added := after.BonusTiersUsed &^ before.BonusTiersUsed; added != 0 {
			tiers := added.Tiers()
			delta.TierConsumed = tiers[len(tiers)-1]
		}
		if after.FirstRelationDate != nil && (before.FirstRelationDate == nil || after.FirstRelationDate.Before(*before.FirstRelationDate)) {
			delta.RelationDateMoved = true
		}
		result.Deltas = append(result.Deltas, delta)
	}

	result.Agents, result.AgentEvents = aggregate(e.policy, result.Creators, byAgent, e.policy.AgentBonus)
	result.Managers, result.ManagerEvents = aggregate(e.policy, result.Creators, byGroup, e.policy.ManagerBonus)

	if err := checkTierExclusivity(result.Creators); err != nil {
		return nil, err
	}
	return result, nil
}

func checkTierExclusivity(rows []rewarddomain.CreatorResult) error {
	for _, row := range rows {
		if row.RewardTier1 > 0 && row.RewardTier2 > 0 {
			return fmt.Errorf("creator %q paid from both tier tables", row.CreatorKey)
		}
	}
	return nil
}

// periodIdentity keys a period label by its resolved end date so that
// "2025-10" and "2025-10-01" name the same period. Unparseable labels key on
// their trimmed text.
func periodIdentity(label string) string {
	if end, err := rewarddomain.PeriodEnd(label); err == nil {
		return end.Format(time.DateOnly)
	}
	return strings.TrimSpace(label)
}
