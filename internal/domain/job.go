package domain

import "time"

type Kind string

const (
	KindApply      Kind = "apply"
	KindRemove     Kind = "remove"
	KindExport     Kind = "export"
	KindBulkUpdate Kind = "bulk-update"
)

func (k Kind) Valid() bool {
	switch k {
	case KindApply, KindRemove, KindExport, KindBulkUpdate:
		return true
	}
	return false
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type PricePolicy string

const (
	PriceMin       PricePolicy = "min"
	PriceSuggested PricePolicy = "suggested"
	PriceMax       PricePolicy = "max"
)

func (p PricePolicy) Valid() bool {
	switch p {
	case PriceMin, PriceSuggested, PriceMax:
		return true
	}
	return false
}

// FilterSpec narrows which scanned items a job acts on. Nil fields mean
// "no constraint".
type FilterSpec struct {
	Status            *string  `json:"statusFilter,omitempty"`
	MaxDerivedPercent *float64 `json:"maxDerivedPercent,omitempty"`
	ExactID           *string  `json:"exactId,omitempty"`
}

type Options struct {
	DryRun        bool   `json:"dryRun,omitempty"`
	ExpectedTotal *int64 `json:"expectedTotal,omitempty"`
}

// Params is the action-specific payload fixed at submission.
type Params struct {
	TargetSelector string         `json:"targetSelector"`
	Statuses       []string       `json:"statuses,omitempty"`
	Filter         FilterSpec     `json:"filter"`
	PricePolicy    PricePolicy    `json:"pricePolicy,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Options        Options        `json:"options"`
}

type Counters struct {
	Total     *int64 `json:"total"`
	Processed int64  `json:"processed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
}

// Result is the terminal summary, set only for completed and failed jobs.
type Result struct {
	Total      int64     `json:"total"`
	Succeeded  int64     `json:"succeeded"`
	Failed     int64     `json:"failed"`
	Reason     string    `json:"reason,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

type Job struct {
	ID         string
	Tenant     string
	Kind       Kind
	Params     Params
	Status     Status
	Counters   Counters
	Progress   int
	Result     *Result
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}
