package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScrapeRun is one row per ingestion invocation, append-only. It is the
// auditable trace of what a scrape did: the provider's run descriptor, the
// search parameters that produced it, and a summary of how the resulting
// store writes went.
type ScrapeRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"column:actor_id" json:"actor_id,omitempty"`
	ActorRunID string    `gorm:"column:actor_run_id;index" json:"actor_run_id,omitempty"`
	DatasetID  string    `gorm:"column:dataset_id" json:"dataset_id,omitempty"`
	Status     string    `gorm:"column:status;not null" json:"status"`

	State string `gorm:"column:state;index" json:"state,omitempty"`
	City  string `gorm:"column:city" json:"city,omitempty"`

	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	DurationMs int64      `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`

	ComputeUnits float64 `gorm:"column:compute_units;not null;default:0" json:"compute_units"`
	CostUSD      float64 `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`

	SearchParams       datatypes.JSON `gorm:"column:search_params;type:jsonb" json:"search_params,omitempty"`
	ResultCount        int            `gorm:"column:result_count;not null;default:0" json:"result_count"`
	ValidationFailures int            `gorm:"column:validation_failures;not null;default:0" json:"validation_failures"`
	StoreResults       datatypes.JSON `gorm:"column:store_results;type:jsonb" json:"store_results,omitempty"`
	Error              string         `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ScrapeRun) TableName() string { return "scrape_run" }
