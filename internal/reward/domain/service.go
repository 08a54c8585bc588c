package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunRequest asks for one reward computation.
type RunRequest struct {
	Records []RawRecord
	// PeriodEnd overrides the end date derived from the period labels.
	PeriodEnd *time.Time
	// DryRun computes the tables without touching history.
	DryRun bool
	Source string
	// Coercions already applied by the import step.
	Coercions []CoercionEvent
	// BeforeCommit is called once the tables are computed and before any
	// history is written, under the history lock for committed runs. An
	// error aborts the run and leaves history untouched.
	BeforeCommit func(ctx context.Context, result *RunResult) error
}

// RunResult is a completed run.
type RunResult struct {
	Run RewardRun `json:"run"`
	Computation
}

type Service interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	GetRun(ctx context.Context, id string) (*RewardRun, error)
	ListRuns(ctx context.Context, limit int) ([]RewardRun, error)
	Policy() Policy
}

// RewardRun is the persisted summary of a committed run.
type RewardRun struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id,string"`
	Periods       string         `gorm:"type:text;not null" json:"periods"`
	PeriodEnd     *time.Time     `json:"period_end,omitempty"`
	Source        string         `gorm:"type:varchar(32);not null" json:"source"`
	DryRun        bool           `gorm:"not null;default:false" json:"dry_run"`
	Records       int            `gorm:"not null" json:"records"`
	Coercions     int            `gorm:"not null" json:"coercions"`
	BonusesPaid   int            `gorm:"not null" json:"bonuses_paid"`
	HistoryWrites int            `gorm:"not null" json:"history_writes"`
	CreatorTotal  int64          `gorm:"not null" json:"creator_total"`
	AgentTotal    int64          `gorm:"not null" json:"agent_total"`
	ManagerTotal  int64          `gorm:"not null" json:"manager_total"`
	Checksum      string         `gorm:"type:varchar(64);not null;index" json:"checksum"`
	Policy        datatypes.JSON `json:"policy,omitempty"`
	Tables        datatypes.JSON `json:"-"`
	Deltas        datatypes.JSON `json:"-"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (RewardRun) TableName() string { return "reward_runs" }

// DecodeTables returns the stored result tables.
func (r RewardRun) DecodeTables() (Tables, error) {
	var t Tables
	if len(r.Tables) == 0 {
		return t, nil
	}
	err := json.Unmarshal(r.Tables, &t)
	return t, err
}

// DecodeDeltas returns the stored history deltas.
func (r RewardRun) DecodeDeltas() ([]HistoryDelta, error) {
	var d []HistoryDelta
	if len(r.Deltas) == 0 {
		return d, nil
	}
	err := json.Unmarshal(r.Deltas, &d)
	return d, err
}

type RunRepository interface {
	Insert(ctx context.Context, db *gorm.DB, run *RewardRun) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RewardRun, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]RewardRun, error)
}
