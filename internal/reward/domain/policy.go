package domain

import (
	"fmt"
	"sort"
)

// Group bonus bases.
const (
	BasisTierReached = "tier_reached"
	BasisTierPaid    = "tier_paid"
)

// ActivityThreshold is a minimum number of live days and hours.
type ActivityThreshold struct {
	MinDays  float64 `mapstructure:"min_days" json:"min_days"`
	MinHours float64 `mapstructure:"min_hours" json:"min_hours"`
}

// Met reports whether both minimums are reached.
func (t ActivityThreshold) Met(days, hours float64) bool {
	return days >= t.MinDays && hours >= t.MinHours
}

// Bracket pays a flat amount for diamonds within [Min, Max].
type Bracket struct {
	Min    int64 `mapstructure:"min" json:"min"`
	Max    int64 `mapstructure:"max" json:"max"`
	Amount int64 `mapstructure:"amount" json:"amount"`
}

// HighVolumeRule replaces the flat tables with a rate from Threshold upward.
type HighVolumeRule struct {
	Threshold int64   `mapstructure:"threshold" json:"threshold"`
	Rate      float64 `mapstructure:"rate" json:"rate"`
}

// Milestone is one beginner bonus tier.
type Milestone struct {
	Tier   int   `mapstructure:"tier" json:"tier"`
	Min    int64 `mapstructure:"min" json:"min"`
	Max    int64 `mapstructure:"max" json:"max"`
	Amount int64 `mapstructure:"amount" json:"amount"`
}

type BonusPolicy struct {
	WindowDays     int         `mapstructure:"window_days" json:"window_days"`
	Milestones     []Milestone `mapstructure:"milestones" json:"milestones"`
	Fallthrough    bool        `mapstructure:"fallthrough" json:"fallthrough"`
	StatusMarkers  []string    `mapstructure:"status_markers" json:"status_markers"`
	StatusPrefixes []string    `mapstructure:"status_prefixes" json:"status_prefixes"`
}

// CommissionPolicy is the agent/manager percentage on active diamonds.
type CommissionPolicy struct {
	Floor      int64   `mapstructure:"floor" json:"floor"`
	Rate       float64 `mapstructure:"rate" json:"rate"`
	Cap        int64   `mapstructure:"cap" json:"cap"`
	ExcessRate float64 `mapstructure:"excess_rate" json:"excess_rate"`
}

// GroupBonus is the flat per-creator amount by tier.
type GroupBonus struct {
	Tier2 int64 `mapstructure:"tier2" json:"tier2"`
	Tier3 int64 `mapstructure:"tier3" json:"tier3"`
}

// Amount returns the flat amount for a creator at tier.
func (g GroupBonus) Amount(tier int) int64 {
	switch tier {
	case 2:
		return g.Tier2
	case 3:
		return g.Tier3
	}
	return 0
}

type RoundingPolicy struct {
	CreatorHighVolume bool  `mapstructure:"creator_high_volume" json:"creator_high_volume"`
	GroupTotals       bool  `mapstructure:"group_totals" json:"group_totals"`
	Unit              int64 `mapstructure:"unit" json:"unit"`
}

// Policy is every tunable number and product decision of a reward run.
type Policy struct {
	ConfirmationThreshold int64             `mapstructure:"confirmation_threshold" json:"confirmation_threshold"`
	Beginner              ActivityThreshold `mapstructure:"beginner" json:"beginner"`
	Confirmed             ActivityThreshold `mapstructure:"confirmed" json:"confirmed"`
	SecondTier            ActivityThreshold `mapstructure:"second_tier" json:"second_tier"`
	SecondTierMinDiamonds int64             `mapstructure:"second_tier_min_diamonds" json:"second_tier_min_diamonds"`
	MinActiveDiamonds     int64             `mapstructure:"min_active_diamonds" json:"min_active_diamonds"`
	RequireFields         bool              `mapstructure:"require_fields" json:"require_fields"`

	Tier1       []Bracket      `mapstructure:"tier1" json:"tier1"`
	Tier2       []Bracket      `mapstructure:"tier2" json:"tier2"`
	HighVolume  HighVolumeRule `mapstructure:"high_volume" json:"high_volume"`
	TierReached []int64        `mapstructure:"tier_reached" json:"tier_reached"`

	Bonus           BonusPolicy      `mapstructure:"bonus" json:"bonus"`
	Commission      CommissionPolicy `mapstructure:"commission" json:"commission"`
	AgentBonus      GroupBonus       `mapstructure:"agent_bonus" json:"agent_bonus"`
	ManagerBonus    GroupBonus       `mapstructure:"manager_bonus" json:"manager_bonus"`
	GroupBonusBasis string           `mapstructure:"group_bonus_basis" json:"group_bonus_basis"`
	Rounding        RoundingPolicy   `mapstructure:"rounding" json:"rounding"`
}

// DefaultPolicy returns the production reward grid.
func DefaultPolicy() Policy {
	return Policy{
		ConfirmationThreshold: 150_000,
		Beginner:              ActivityThreshold{MinDays: 7, MinHours: 15},
		Confirmed:             ActivityThreshold{MinDays: 12, MinHours: 25},
		SecondTier:            ActivityThreshold{MinDays: 20, MinHours: 80},
		SecondTierMinDiamonds: 150_000,
		MinActiveDiamonds:     0,
		RequireFields:         true,
		Tier1: []Bracket{
			{35_000, 74_999, 1000},
			{75_000, 149_999, 2500},
			{150_000, 199_999, 5000},
			{200_000, 299_999, 6000},
			{300_000, 399_999, 7999},
			{400_000, 499_999, 12000},
			{500_000, 599_999, 15000},
			{600_000, 699_999, 18000},
			{700_000, 799_999, 21000},
			{800_000, 899_999, 24000},
			{900_000, 999_999, 26999},
			{1_000_000, 1_499_999, 30000},
			{1_500_000, 1_999_999, 44999},
		},
		Tier2: []Bracket{
			{35_000, 74_999, 1000},
			{75_000, 149_999, 2500},
			{150_000, 199_999, 6000},
			{200_000, 299_999, 7999},
			{300_000, 399_999, 12000},
			{400_000, 499_999, 15000},
			{500_000, 599_999, 20000},
			{600_000, 699_999, 24000},
			{700_000, 799_999, 26999},
			{800_000, 899_999, 30000},
			{900_000, 999_999, 35000},
			{1_000_000, 1_499_999, 39999},
			{1_500_000, 1_999_999, 59999},
		},
		HighVolume:  HighVolumeRule{Threshold: 2_000_000, Rate: 0.04},
		TierReached: []int64{75_000, 150_000, 500_000},
		Bonus: BonusPolicy{
			WindowDays: 90,
			Milestones: []Milestone{
				{Tier: 1, Min: 75_000, Max: 149_999, Amount: 500},
				{Tier: 2, Min: 150_000, Max: 499_999, Amount: 1088},
				{Tier: 3, Min: 500_000, Max: 2_000_000, Amount: 3000},
			},
			Fallthrough:    false,
			StatusMarkers:  []string{"beginner", "debutant", "non-graduated", "non graduated", "not graduated", "non diplome", "non-diplome", "90"},
			StatusPrefixes: []string{"deb"},
		},
		Commission:      CommissionPolicy{Floor: 200_000, Rate: 0.02, Cap: 4_000_000, ExcessRate: 0.03},
		AgentBonus:      GroupBonus{Tier2: 1000, Tier3: 15000},
		ManagerBonus:    GroupBonus{Tier2: 1000, Tier3: 5000},
		GroupBonusBasis: BasisTierReached,
		Rounding:        RoundingPolicy{Unit: 1000},
	}
}

// Validate rejects policies the engine cannot evaluate unambiguously.
func (p Policy) Validate() error {
	if p.ConfirmationThreshold <= 0 {
		return fmt.Errorf("%w: confirmation_threshold must be positive", ErrInvalidPolicy)
	}
	for name, table := range map[string][]Bracket{"tier1": p.Tier1, "tier2": p.Tier2} {
		if err := validateBrackets(name, table); err != nil {
			return err
		}
	}
	if len(p.Tier1) != len(p.Tier2) {
		return fmt.Errorf("%w: tier1 and tier2 must share boundaries", ErrInvalidPolicy)
	}
	for i := range p.Tier1 {
		if p.Tier1[i].Min != p.Tier2[i].Min || p.Tier1[i].Max != p.Tier2[i].Max {
			return fmt.Errorf("%w: tier1 and tier2 must share boundaries", ErrInvalidPolicy)
		}
	}
	if p.HighVolume.Threshold <= 0 || p.HighVolume.Rate < 0 {
		return fmt.Errorf("%w: high_volume", ErrInvalidPolicy)
	}
	if len(p.TierReached) != 3 || !sort.SliceIsSorted(p.TierReached, func(i, j int) bool { return p.TierReached[i] < p.TierReached[j] }) {
		return fmt.Errorf("%w: tier_reached needs three ascending thresholds", ErrInvalidPolicy)
	}
	if p.Bonus.WindowDays <= 0 {
		return fmt.Errorf("%w: bonus.window_days must be positive", ErrInvalidPolicy)
	}
	seen := map[int]bool{}
	for _, m := range p.Bonus.Milestones {
		if m.Tier < 1 || m.Tier > 3 || seen[m.Tier] {
			return fmt.Errorf("%w: bonus milestone tier %d", ErrInvalidPolicy, m.Tier)
		}
		if m.Max < m.Min {
			return fmt.Errorf("%w: bonus milestone tier %d has max below min", ErrInvalidPolicy, m.Tier)
		}
		seen[m.Tier] = true
	}
	switch p.GroupBonusBasis {
	case BasisTierReached, BasisTierPaid:
	default:
		return fmt.Errorf("%w: group_bonus_basis %q", ErrInvalidPolicy, p.GroupBonusBasis)
	}
	if p.Commission.Cap < p.Commission.Floor {
		return fmt.Errorf("%w: commission cap below floor", ErrInvalidPolicy)
	}
	if (p.Rounding.CreatorHighVolume || p.Rounding.GroupTotals) && p.Rounding.Unit <= 0 {
		return fmt.Errorf("%w: rounding.unit must be positive", ErrInvalidPolicy)
	}
	return nil
}

func validateBrackets(name string, table []Bracket) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidPolicy, name)
	}
	for i, b := range table {
		if b.Max < b.Min {
			return fmt.Errorf("%w: %s bracket %d has max below min", ErrInvalidPolicy, name, i)
		}
		if i > 0 && b.Min <= table[i-1].Max {
			return fmt.Errorf("%w: %s bracket %d overlaps its predecessor", ErrInvalidPolicy, name, i)
		}
	}
	return nil
}
