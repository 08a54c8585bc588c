package domain

import (
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
)

type CreatorClass string

const (
	ClassBeginner  CreatorClass = "beginner"
	ClassConfirmed CreatorClass = "confirmed"
)

// Inactivity and visibility reasons attached to a creator row.
const (
	ReasonInsufficientDays     = "insufficient_days"
	ReasonInsufficientHours    = "insufficient_hours"
	ReasonInsufficientDiamonds = "insufficient_diamonds"
	ReasonSecondTierNotMet     = "second_tier_not_validated"
)

// CreatorResult is one row of the Creators table.
type CreatorResult struct {
	Period       string `json:"period"`
	CreatorKey   string `json:"creator_key"`
	CreatorID    string `json:"creator_id,omitempty"`
	Username     string `json:"username"`
	Group        string `json:"group"`
	Agent        string `json:"agent"`
	RelationDate string `json:"relation_date,omitempty"`

	Diamonds  int64   `json:"diamonds"`
	LiveHours float64 `json:"live_hours"`
	LiveDays  float64 `json:"live_days"`

	Class               CreatorClass `json:"creator_class"`
	Active              bool         `json:"active"`
	Reasons             []string     `json:"reasons,omitempty"`
	TierReached         int          `json:"tier_reached"`
	SecondTierValidated bool         `json:"second_tier_validated"`

	RewardTier1   int64 `json:"reward_tier1"`
	RewardTier2   int64 `json:"reward_tier2"`
	BonusAmount   int64 `json:"beginner_bonus_amount"`
	BonusTierPaid int   `json:"beginner_bonus_tier_paid"`
	TotalReward   int64 `json:"total_reward"`
}

// GroupResult is one row of the Agents or Managers table.
type GroupResult struct {
	Period         string `json:"period"`
	Key            string `json:"key"`
	Creators       int    `json:"creators"`
	ActiveCreators int    `json:"active_creators"`
	Tier2Creators  int    `json:"tier2_creators"`
	Tier3Creators  int    `json:"tier3_creators"`
	DiamondsTotal  int64  `json:"diamonds_total"`
	DiamondsActive int64  `json:"diamonds_active"`
	Loss           int64  `json:"loss"`
	Commission     int64  `json:"commission"`
	FlatBonus      int64  `json:"flat_bonus"`
	TotalReward    int64  `json:"total_reward"`
}

// GroupEvent is one creator's contribution to the flat bonus of an agent or
// manager row.
type GroupEvent struct {
	Period  string `json:"period"`
	Key     string `json:"key"`
	Creator string `json:"creator"`
	Tier    int    `json:"tier"`
	Amount  int64  `json:"amount"`
}

// HistoryDelta describes what a run changed for one creator.
type HistoryDelta struct {
	CreatorKey        string              `json:"creator_key"`
	Before            historydomain.Entry `json:"before"`
	After             historydomain.Entry `json:"after"`
	TierConsumed      int                 `json:"tier_consumed,omitempty"`
	BecameConfirmed   bool                `json:"became_confirmed,omitempty"`
	RelationDateMoved bool                `json:"relation_date_moved,omitempty"`
}

// Changed reports whether the delta alters the stored entry.
func (d HistoryDelta) Changed() bool {
	return !d.Before.Equal(d.After)
}

// Tables is the full output of a computation.
type Tables struct {
	Creators []CreatorResult `json:"creators"`
	Agents   []GroupResult   `json:"agents"`
	Managers []GroupResult   `json:"managers"`

	AgentEvents   []GroupEvent `json:"agent_events"`
	ManagerEvents []GroupEvent `json:"manager_events"`
}

// Totals sums the reward columns of each table.
func (t Tables) Totals() (creators, agents, managers int64) {
	for _, c := range t.Creators {
		creators += c.TotalReward
	}
	for _, a := range t.Agents {
		agents += a.TotalReward
	}
	for _, m := range t.Managers {
		managers += m.TotalReward
	}
	return creators, agents, managers
}

// Computation is the engine output for one batch.
type Computation struct {
	Tables
	Deltas    []HistoryDelta  `json:"deltas"`
	Coercions []CoercionEvent `json:"coercions,omitempty"`
}

// Entries returns the resulting history entries of every changed delta.
func (c *Computation) Entries() []historydomain.Entry {
	out := make([]historydomain.Entry, 0, len(c.Deltas))
	for _, d := range c.Deltas {
		if d.Changed() {
			out = append(out, d.After)
		}
	}
	return out
}
