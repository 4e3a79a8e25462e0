package history

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"obrawatch/internal/config"
	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
)

// daysPerMonth converts date deltas to months the same way for every record.
const daysPerMonth = 30

var Fields = normalize.AliasTable{
	"work_id":    {"ID OBRA", "id_obra", "workId", "work_id", "obra_id", "idObra"},
	"field":      {"CAMPO MODIFICADO", "campo_modificado", "campo", "fieldChanged", "field_changed", "field"},
	"old_value":  {"VALOR ANTERIOR", "valor_anterior", "oldValue", "old_value"},
	"new_value":  {"VALOR NUEVO", "valor_nuevo", "newValue", "new_value"},
	"changed_at": {"FECHA CAMBIO", "fecha_cambio", "changedAt", "changed_at", "FECHA MODIFICACIÓN", "fecha_modificacion"},
	"changed_by": {"USUARIO", "usuario", "changedBy", "changed_by", "MODIFICADO POR"},
}

type Options struct {
	Cutoff              time.Time
	BudgetThreshold     float64
	DateThresholdMonths float64
}

func DefaultOptions() Options {
	cutoff, _ := time.Parse("2006-01-02", config.DefaultHistoryCutoff)
	return Options{
		Cutoff:              cutoff,
		BudgetThreshold:     config.DefaultBudgetThreshold,
		DateThresholdMonths: config.DefaultDateThreshold,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Cutoff:              cfg.HistoryCutoff(),
		BudgetThreshold:     cfg.History.BudgetThreshold,
		DateThresholdMonths: cfg.History.DateThresholdMonths,
	}
}

// FromRaw maps raw history items. An unparseable change date leaves ChangedAt
// zero, which keeps the record out of every detector.
func FromRaw(items []model.RawRecord) []model.ChangeRecord {
	out := make([]model.ChangeRecord, 0, len(items))
	for _, raw := range items {
		rec := model.ChangeRecord{
			WorkID:       Fields.String(raw, "work_id", ""),
			FieldChanged: Fields.String(raw, "field", ""),
			OldValue:     Fields.String(raw, "old_value", ""),
			NewValue:     Fields.String(raw, "new_value", ""),
			ChangedBy:    Fields.String(raw, "changed_by", ""),
		}
		if v, _, ok := Fields.Lookup(raw, "changed_at"); ok {
			if t, ok := normalize.ParseDateAny(v); ok {
				rec.ChangedAt = t
			}
		}
		out = append(out, rec)
	}
	return out
}

// IsDateField matches estimated delivery date fields such as "fecha_estimada_entrega".
func IsDateField(field string) bool {
	f := normalize.Fold(field)
	return strings.Contains(f, "fecha") && strings.Contains(f, "estimada")
}

func IsBudgetField(field string) bool {
	f := normalize.Fold(field)
	return strings.Contains(f, "costo") || strings.Contains(f, "presupuesto")
}

// DateChanges keeps, per work, the largest estimated-date move in months
// that exceeds the threshold.
func DateChanges(records []model.ChangeRecord, opts Options) []model.ChangeRecord {
	return largestPerWork(records, opts, model.ChangeDate, opts.DateThresholdMonths, func(r model.ChangeRecord) (float64, bool) {
		if !IsDateField(r.FieldChanged) {
			return 0, false
		}
		oldDate, err := normalize.ParseDate(r.OldValue)
		if err != nil {
			return 0, false
		}
		newDate, err := normalize.ParseDate(r.NewValue)
		if err != nil {
			return 0, false
		}
		return math.Abs(newDate.Sub(oldDate).Hours()/24) / daysPerMonth, true
	})
}

// BudgetChanges keeps, per work, the largest absolute cost delta that exceeds
// the threshold.
func BudgetChanges(records []model.ChangeRecord, opts Options) []model.ChangeRecord {
	return largestPerWork(records, opts, model.ChangeBudget, opts.BudgetThreshold, func(r model.ChangeRecord) (float64, bool) {
		if !IsBudgetField(r.FieldChanged) {
			return 0, false
		}
		oldAmount, ok := normalize.ParseAmount(r.OldValue)
		if !ok {
			return 0, false
		}
		newAmount, ok := normalize.ParseAmount(r.NewValue)
		if !ok {
			return 0, false
		}
		return math.Abs(newAmount - oldAmount), true
	})
}

func largestPerWork(records []model.ChangeRecord, opts Options, kind model.ChangeKind, threshold float64, magnitude func(model.ChangeRecord) (float64, bool)) []model.ChangeRecord {
	index := map[string]int{}
	var out []model.ChangeRecord
	for _, r := range records {
		if r.ChangedAt.IsZero() || r.ChangedAt.Before(opts.Cutoff) {
			continue
		}
		m, ok := magnitude(r)
		if !ok || m <= threshold {
			continue
		}
		r.Kind = kind
		r.Magnitude = m
		i, seen := index[r.WorkID]
		if !seen {
			index[r.WorkID] = len(out)
			out = append(out, r)
			continue
		}
		if m > out[i].Magnitude {
			out[i] = r
		}
	}
	return out
}

// Summary renders a change for logs and event payloads.
func Summary(r model.ChangeRecord) string {
	switch r.Kind {
	case model.ChangeBudget:
		oldAmount, _ := normalize.ParseAmount(r.OldValue)
		newAmount, _ := normalize.ParseAmount(r.NewValue)
		sign := "+"
		if newAmount < oldAmount {
			sign = "-"
		}
		return fmt.Sprintf("obra %s: %s $%s -> $%s (%s$%s) %s",
			r.WorkID, r.FieldChanged,
			humanize.Commaf(math.Round(oldAmount)), humanize.Commaf(math.Round(newAmount)),
			sign, humanize.Commaf(math.Round(r.Magnitude)), humanize.Time(r.ChangedAt))
	case model.ChangeDate:
		return fmt.Sprintf("obra %s: %s %s -> %s (%s meses) %s",
			r.WorkID, r.FieldChanged, r.OldValue, r.NewValue,
			humanize.FtoaWithDigits(r.Magnitude, 1), humanize.Time(r.ChangedAt))
	}
	return fmt.Sprintf("obra %s: %s %q -> %q", r.WorkID, r.FieldChanged, r.OldValue, r.NewValue)
}
