package model

import "time"

// RawRecord is an upstream record as decoded from JSON. Keys are whatever the
// source API sends, usually Spanish labels with inconsistent casing.
type RawRecord map[string]any

type MappedAlert struct {
	ID                     string  `json:"id"`
	WorkID                 string  `json:"work_id"`
	WorkName               string  `json:"work_name"`
	WorkState              string  `json:"work_state"`
	Department             string  `json:"department"`
	District               string  `json:"district"`
	StrategicProject       string  `json:"strategic_project"`
	Description            string  `json:"description"`
	AlertDate              string  `json:"alert_date"`
	RiskImpact             string  `json:"risk_impact"`
	GeneratesProjectChange bool    `json:"generates_project_change"`
	ChangeDescription      string  `json:"change_description"`
	ChangeApprover         string  `json:"change_approver"`
	Severity               *string `json:"severity"`
	CreatedAt              string  `json:"created_at"`
	CreatedBy              string  `json:"created_by"`
	UpdatedAt              string  `json:"updated_at"`
	UpdatedBy              string  `json:"updated_by"`
}

// SeverityValue returns the raw severity or "" when the source had none.
func (a MappedAlert) SeverityValue() string {
	if a.Severity == nil {
		return ""
	}
	return *a.Severity
}

type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type ThresholdBucket struct {
	Gravedad   []string `json:"gravedad" yaml:"gravedad"`
	RiskImpact []string `json:"risk_impact" yaml:"risk_impact"`
}

type SeverityThresholds struct {
	Critical ThresholdBucket `json:"critical" yaml:"critical"`
	Warning  ThresholdBucket `json:"warning" yaml:"warning"`
}

// Phase is one of the planning/execution stages tracked per work.
type Phase struct {
	Name      string  `json:"name"`
	Percent   float64 `json:"percent"`
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
}

type UnifiedProject struct {
	WorkID string `json:"work_id"`

	// Representative alert, taken from the first alert of the work.
	AlertID                string  `json:"alert_id,omitempty"`
	AlertDescription       string  `json:"alert_description,omitempty"`
	AlertDate              string  `json:"alert_date,omitempty"`
	AlertSeverity          *string `json:"alert_severity,omitempty"`
	RiskImpact             string  `json:"risk_impact,omitempty"`
	GeneratesProjectChange bool    `json:"generates_project_change"`
	ChangeDescription      string  `json:"change_description,omitempty"`
	ChangeApprover         string  `json:"change_approver,omitempty"`
	AlertCreatedBy         string  `json:"alert_created_by,omitempty"`

	WorkName              string    `json:"work_name"`
	WorkState             string    `json:"work_state"`
	Department            string    `json:"department"`
	District              string    `json:"district"`
	StrategicProject      string    `json:"strategic_project"`
	InterventionType      string    `json:"intervention_type"`
	CurrentPhase          string    `json:"current_phase"`
	Contractor            string    `json:"contractor,omitempty"`
	Supervisor            string    `json:"supervisor,omitempty"`
	BPINCode              string    `json:"bpin_code,omitempty"`
	ContractNumber        string    `json:"contract_number,omitempty"`
	Latitude              float64   `json:"latitude,omitempty"`
	Longitude             float64   `json:"longitude,omitempty"`
	Address               string    `json:"address,omitempty"`
	TotalCost             float64   `json:"total_cost"`
	UpdatedTotalCost      float64   `json:"updated_total_cost"`
	ExecutedBudget        float64   `json:"executed_budget"`
	ExecutedBudgetPercent float64   `json:"executed_budget_percent"`
	StartDate             string    `json:"start_date,omitempty"`
	EstimatedDeliveryDate string    `json:"estimated_delivery_date,omitempty"`
	Delivered             bool      `json:"delivered"`
	PartiallyDelivered    bool      `json:"partially_delivered"`
	Phases                []Phase   `json:"phases,omitempty"`
	Extra                 RawRecord `json:"extra,omitempty"`

	HasAlerts          bool    `json:"has_alerts"`
	TotalAlerts        int     `json:"total_alerts"`
	CriticalAlertCount int     `json:"critical_alert_count"`
	ModerateAlertCount int     `json:"moderate_alert_count"`
	LightAlertCount    int     `json:"light_alert_count"`
	LastAlertDate      string  `json:"last_alert_date,omitempty"`
	TotalProgress      float64 `json:"total_progress"`
	AvailableBudget    float64 `json:"available_budget"`
	DaysRemaining      *int    `json:"days_remaining,omitempty"`
	IsOverdue          bool    `json:"is_overdue"`
	RequiresAttention  bool    `json:"requires_attention"`
}

// OrphanedGroup holds alerts whose work id is not present in the works collection.
type OrphanedGroup struct {
	WorkID string        `json:"work_id"`
	Alerts []MappedAlert `json:"alerts"`
}

type ChangeKind string

const (
	ChangeBudget ChangeKind = "budget"
	ChangeDate   ChangeKind = "estimated_date"
)

type ChangeRecord struct {
	WorkID       string     `json:"work_id"`
	FieldChanged string     `json:"field_changed"`
	OldValue     string     `json:"old_value"`
	NewValue     string     `json:"new_value"`
	ChangedAt    time.Time  `json:"changed_at"`
	ChangedBy    string     `json:"changed_by"`
	Kind         ChangeKind `json:"kind,omitempty"`
	Magnitude    float64    `json:"magnitude,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type Metadata struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}
