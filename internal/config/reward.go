package config

import (
	"errors"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const rewardKey = "reward"

// RewardPolicyHolder serves the current reward policy and swaps it when the
// policy file changes. A reload that fails validation keeps the previous
// policy.
type RewardPolicyHolder struct {
	current atomic.Value // holds rewarddomain.Policy
	source  string
}

// NewStaticPolicyHolder serves a fixed policy.
func NewStaticPolicyHolder(p rewarddomain.Policy) (*RewardPolicyHolder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	holder := &RewardPolicyHolder{source: "static"}
	holder.current.Store(p)
	return holder, nil
}

func NewRewardPolicyHolder(cfg Config, log *zap.Logger) (*RewardPolicyHolder, error) {
	log = log.Named("reward.policy")
	v := viper.New()

	if cfg.RewardPolicyFile != "" {
		v.SetConfigFile(cfg.RewardPolicyFile)
	} else {
		v.SetConfigName("rewards")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/creatorpay/config") // Volume-mounted config
		v.AddConfigPath("/etc/creatorpay")
		v.AddConfigPath(".")
	}

	holder := &RewardPolicyHolder{source: "defaults"}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("reward policy file not found, using defaults")
		holder.current.Store(rewarddomain.DefaultPolicy())
		return holder, nil
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}
	holder.source = v.ConfigFileUsed()
	holder.current.Store(policy)
	log.Info("reward policy loaded",
		zap.String("file", holder.source),
		zap.Bool("bonus_fallthrough", policy.Bonus.Fallthrough),
		zap.String("group_bonus_basis", policy.GroupBonusBasis),
		zap.Bool("round_creator_high_volume", policy.Rounding.CreatorHighVolume),
		zap.Bool("round_group_totals", policy.Rounding.GroupTotals),
	)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("invalid reward policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reward policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Get returns the current policy.
func (h *RewardPolicyHolder) Get() rewarddomain.Policy {
	return h.current.Load().(rewarddomain.Policy)
}

// Source names where the current policy came from.
func (h *RewardPolicyHolder) Source() string {
	return h.source
}

// decodePolicy overlays the file onto the default policy. Lists present in
// the file replace the default lists entirely.
func decodePolicy(v *viper.Viper) (rewarddomain.Policy, error) {
	policy := rewarddomain.DefaultPolicy()
	if err := v.UnmarshalKey(rewardKey, &policy, func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	}); err != nil {
		return rewarddomain.Policy{}, err
	}
	if err := policy.Validate(); err != nil {
		return rewarddomain.Policy{}, err
	}
	return policy, nil
}
