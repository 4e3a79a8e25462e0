package publish

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"obrawatch/internal/history"
	"obrawatch/internal/model"
)

type Kind string

const (
	KindAttention    Kind = "attention"
	KindBudgetChange Kind = "budget_change"
	KindDateChange   Kind = "date_change"
)

var eventNamespace = uuid.MustParse("b3a1d6c2-44f0-5e8a-9f17-2c6d0e5a7b91")

// Event is what goes on the broker and into the feed. The ID is derived from
// the content so replays of the same fact share it.
type Event struct {
	ID         string                `json:"id"`
	Kind       Kind                  `json:"kind"`
	WorkID     string                `json:"work_id"`
	WorkName   string                `json:"work_name,omitempty"`
	Summary    string                `json:"summary"`
	OccurredAt time.Time             `json:"occurred_at"`
	Project    *model.UnifiedProject `json:"project,omitempty"`
	Change     *model.ChangeRecord   `json:"change,omitempty"`
}

func eventID(kind Kind, parts ...string) string {
	name := string(kind) + "|" + strings.Join(parts, "|")
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// AttentionEvents returns one event per project that requires attention now
// and was not flagged in previous.
func AttentionEvents(previous map[string]struct{}, projects []model.UnifiedProject, now time.Time) []Event {
	var out []Event
	for i := range projects {
		p := projects[i]
		if !p.RequiresAttention {
			continue
		}
		if _, ok := previous[p.WorkID]; ok {
			continue
		}
		out = append(out, Event{
			ID:         eventID(KindAttention, p.WorkID, strconv.Itoa(p.CriticalAlertCount), strconv.FormatBool(p.IsOverdue)),
			Kind:       KindAttention,
			WorkID:     p.WorkID,
			WorkName:   p.WorkName,
			Summary:    attentionSummary(p),
			OccurredAt: now,
			Project:    &p,
		})
	}
	return out
}

func attentionSummary(p model.UnifiedProject) string {
	var reasons []string
	if p.CriticalAlertCount > 0 {
		reasons = append(reasons, strconv.Itoa(p.CriticalAlertCount)+" alertas críticas")
	}
	if p.IsOverdue {
		reasons = append(reasons, "entrega vencida")
	}
	if p.TotalProgress < 10 {
		reasons = append(reasons, "avance "+strconv.FormatFloat(p.TotalProgress, 'f', -1, 64)+"%")
	}
	return "obra " + p.WorkID + " requiere atención: " + strings.Join(reasons, ", ")
}

// ChangeEvents wraps significant changes.
func ChangeEvents(changes []model.ChangeRecord, now time.Time) []Event {
	out := make([]Event, 0, len(changes))
	for i := range changes {
		c := changes[i]
		kind := KindBudgetChange
		if c.Kind == model.ChangeDate {
			kind = KindDateChange
		}
		out = append(out, Event{
			ID:         eventID(kind, c.WorkID, c.FieldChanged, c.NewValue, c.ChangedAt.UTC().Format(time.RFC3339)),
			Kind:       kind,
			WorkID:     c.WorkID,
			Summary:    history.Summary(c),
			OccurredAt: now,
			Change:     &c,
		})
	}
	return out
}
