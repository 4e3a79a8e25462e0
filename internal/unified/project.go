package unified

import (
	"math"
	"time"

	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
	"obrawatch/internal/severity"
)

// AttentionProgressThreshold is the executed-budget percentage under which a
// work is flagged for attention regardless of its alerts.
const AttentionProgressThreshold = 10

// CreateUnifiedProject combines one work with the alerts grouped under its id.
// alerts[0], when present, supplies the representative alert fields.
func CreateUnifiedProject(work model.RawRecord, alerts []model.MappedAlert, now time.Time) model.UnifiedProject {
	var rep model.MappedAlert
	if len(alerts) > 0 {
		rep = alerts[0]
	}

	w := normalize.Works
	p := model.UnifiedProject{
		WorkID: normalize.WorkID(work),

		WorkName:              w.String(work, "name", firstNonEmpty(rep.WorkName, normalize.DefaultWorkName)),
		WorkState:             w.String(work, "state", firstNonEmpty(rep.WorkState, normalize.DefaultWorkState)),
		Department:            w.String(work, "department", rep.Department),
		District:              w.String(work, "district", rep.District),
		StrategicProject:      w.String(work, "strategic_project", rep.StrategicProject),
		InterventionType:      w.String(work, "intervention_type", ""),
		CurrentPhase:          w.String(work, "current_phase", ""),
		Contractor:            w.String(work, "contractor", ""),
		Supervisor:            w.String(work, "supervisor", ""),
		BPINCode:              w.String(work, "bpin", ""),
		ContractNumber:        w.String(work, "contract_number", ""),
		Latitude:              w.Float(work, "latitude"),
		Longitude:             w.Float(work, "longitude"),
		Address:               w.String(work, "address", ""),
		TotalCost:             w.Float(work, "total_cost"),
		UpdatedTotalCost:      w.Float(work, "updated_total_cost"),
		ExecutedBudget:        w.Float(work, "executed_budget"),
		ExecutedBudgetPercent: w.Float(work, "executed_budget_percent"),
		StartDate:             w.String(work, "start_date", ""),
		EstimatedDeliveryDate: w.String(work, "estimated_delivery_date", ""),
		Delivered:             w.Bool(work, "delivered"),
		PartiallyDelivered:    w.Bool(work, "partially_delivered"),
	}
	if p.WorkID == "" {
		p.WorkID = rep.WorkID
	}

	if len(alerts) > 0 {
		p.AlertID = rep.ID
		p.AlertDescription = rep.Description
		p.AlertDate = rep.AlertDate
		p.AlertSeverity = rep.Severity
		p.RiskImpact = rep.RiskImpact
		p.GeneratesProjectChange = rep.GeneratesProjectChange
		p.ChangeDescription = rep.ChangeDescription
		p.ChangeApprover = rep.ChangeApprover
		p.AlertCreatedBy = rep.CreatedBy
	}

	phases, used := normalize.Phases(work)
	p.Phases = phases
	p.Extra = extraFields(work, used)

	p.HasAlerts = len(alerts) > 0
	p.TotalAlerts = len(alerts)
	for _, a := range alerts {
		switch severity.BucketOfAlert(a) {
		case severity.BucketCritical:
			p.CriticalAlertCount++
		case severity.BucketModerate:
			p.ModerateAlertCount++
		case severity.BucketLight:
			p.LightAlertCount++
		}
	}
	p.LastAlertDate = lastAlertDate(alerts)

	p.TotalProgress = p.ExecutedBudgetPercent
	p.AvailableBudget = p.UpdatedTotalCost - p.ExecutedBudget
	if due, err := normalize.ParseDate(p.EstimatedDeliveryDate); err == nil {
		days := int(math.Ceil(due.Sub(now).Hours() / 24))
		p.DaysRemaining = &days
		p.IsOverdue = days < 0
	}
	p.RequiresAttention = p.CriticalAlertCount > 0 || p.IsOverdue || p.TotalProgress < AttentionProgressThreshold
	return p
}

// extraFields keeps the raw keys no canonical field consumed.
func extraFields(work model.RawRecord, used map[string]struct{}) model.RawRecord {
	consumed := make(map[string]struct{}, len(used)+len(normalize.Works))
	for k := range used {
		consumed[k] = struct{}{}
	}
	for field := range normalize.Works {
		if _, key, ok := normalize.Works.Lookup(work, field); ok {
			consumed[key] = struct{}{}
		}
	}
	var extra model.RawRecord
	for k, v := range work {
		if _, ok := consumed[k]; ok {
			continue
		}
		if extra == nil {
			extra = model.RawRecord{}
		}
		extra[k] = v
	}
	return extra
}

// lastAlertDate returns the latest parseable alert date, or the first
// non-empty one when none parse.
func lastAlertDate(alerts []model.MappedAlert) string {
	var (
		best     string
		bestTime time.Time
		fallback string
	)
	for _, a := range alerts {
		if a.AlertDate == "" {
			continue
		}
		if fallback == "" {
			fallback = a.AlertDate
		}
		t, err := normalize.ParseDate(a.AlertDate)
		if err != nil {
			continue
		}
		if best == "" || t.After(bestTime) {
			best, bestTime = a.AlertDate, t
		}
	}
	if best != "" {
		return best
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
