package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obrawatch/internal/model"
	"obrawatch/internal/sources"
)

func budgetItem(newValue string) model.RawRecord {
	return model.RawRecord{
		"workId":    5.0,
		"field":     "costo_total",
		"oldValue":  "1000000000",
		"newValue":  newValue,
		"changedAt": "2025-09-15",
	}
}

func TestBudgetChangeAboveThreshold(t *testing.T) {
	got := BudgetChanges(FromRaw([]model.RawRecord{budgetItem("1600000000")}), DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].WorkID)
	assert.Equal(t, 600_000_000.0, got[0].Magnitude)
	assert.Equal(t, model.ChangeBudget, got[0].Kind)
}

func TestBudgetChangeBelowThresholdExcluded(t *testing.T) {
	got := BudgetChanges(FromRaw([]model.RawRecord{budgetItem("1300000000")}), DefaultOptions())
	assert.Empty(t, got)
}

func TestBudgetChangesKeepLargestPerWork(t *testing.T) {
	items := []model.RawRecord{
		budgetItem("1600000000"),
		{"ID OBRA": "5", "CAMPO MODIFICADO": "Presupuesto ejecutado", "VALOR ANTERIOR": "$ 1.000.000.000", "VALOR NUEVO": "$ 2.000.000.000", "FECHA CAMBIO": "2025-10-01"},
		{"ID OBRA": "9", "CAMPO MODIFICADO": "COSTO TOTAL", "VALOR ANTERIOR": "2000000000", "VALOR NUEVO": "1000000000", "FECHA CAMBIO": "2025-10-01"},
		{"ID OBRA": "9", "CAMPO MODIFICADO": "COSTO TOTAL", "VALOR ANTERIOR": "n/a", "VALOR NUEVO": "9000000000", "FECHA CAMBIO": "2025-10-01"},
		{"ID OBRA": "7", "CAMPO MODIFICADO": "COSTO TOTAL", "VALOR ANTERIOR": "0", "VALOR NUEVO": "9000000000", "FECHA CAMBIO": "2025-08-31"},
		{"ID OBRA": "8", "CAMPO MODIFICADO": "COSTO TOTAL", "VALOR ANTERIOR": "0", "VALOR NUEVO": "9000000000", "FECHA CAMBIO": "ayer"},
	}
	got := BudgetChanges(FromRaw(items), DefaultOptions())
	require.Len(t, got, 2)
	assert.Equal(t, "5", got[0].WorkID)
	assert.Equal(t, 1_000_000_000.0, got[0].Magnitude)
	assert.Equal(t, "9", got[1].WorkID)
	assert.Equal(t, 1_000_000_000.0, got[1].Magnitude)
}

func TestDateChanges(t *testing.T) {
	items := []model.RawRecord{
		{"id_obra": "3", "campo": "fecha_estimada_entrega", "valor_anterior": "2025-12-01", "valor_nuevo": "2026-03-15", "fecha_cambio": "2025-09-20"},
		{"id_obra": "3", "campo": "Fecha estimada de entrega", "valor_anterior": "2025-12-01", "valor_nuevo": "2026-06-01", "fecha_cambio": "2025-09-25"},
		{"id_obra": "4", "campo": "fecha_estimada_entrega", "valor_anterior": "2025-12-01", "valor_nuevo": "2026-01-15", "fecha_cambio": "2025-09-20"},
		{"id_obra": "6", "campo": "fecha_inicio", "valor_anterior": "2025-01-01", "valor_nuevo": "2026-01-01", "fecha_cambio": "2025-09-20"},
		{"id_obra": "7", "campo": "fecha_estimada_entrega", "valor_anterior": "pronto", "valor_nuevo": "2026-01-01", "fecha_cambio": "2025-09-20"},
	}
	got := DateChanges(FromRaw(items), DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].WorkID)
	assert.Equal(t, "2026-06-01", got[0].NewValue)
	assert.InDelta(t, 6.0, got[0].Magnitude, 0.1)
	assert.Equal(t, model.ChangeDate, got[0].Kind)
}

func TestFieldMatchers(t *testing.T) {
	assert.True(t, IsBudgetField("COSTO TOTAL ACTUALIZADO"))
	assert.True(t, IsBudgetField("presupuesto"))
	assert.False(t, IsBudgetField("fecha_estimada"))
	assert.True(t, IsDateField("FECHA ESTIMADA DE ENTREGA"))
	assert.False(t, IsDateField("fecha_inicio"))
}

func TestSummary(t *testing.T) {
	rec := model.ChangeRecord{
		WorkID: "5", FieldChanged: "costo_total", OldValue: "1000000000", NewValue: "1600000000",
		Kind: model.ChangeBudget, Magnitude: 600_000_000, ChangedAt: time.Now().Add(-48 * time.Hour),
	}
	s := Summary(rec)
	assert.True(t, strings.Contains(s, "$1,000,000,000 -> $1,600,000,000"), s)
	assert.True(t, strings.Contains(s, "(+$600,000,000)"), s)
	assert.True(t, strings.Contains(s, "ago"), s)
}

type fakeFetcher struct {
	page sources.Page
	err  error
}

func (f fakeFetcher) GetHistory(context.Context) (sources.Page, error) {
	return f.page, f.err
}

func TestDetectorRunsBothDetectors(t *testing.T) {
	page := sources.Page{Data: []model.RawRecord{
		budgetItem("1600000000"),
		{"id_obra": "3", "campo": "fecha_estimada_entrega", "valor_anterior": "2025-12-01", "valor_nuevo": "2026-06-01", "fecha_cambio": "2025-09-25"},
	}}
	c, err := NewDetector(fakeFetcher{page: page}, nil, nil).Detect(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Records)
	assert.Len(t, c.Budget, 1)
	assert.Len(t, c.Dates, 1)
	assert.Len(t, c.All(), 2)

	_, err = NewDetector(fakeFetcher{err: errors.New("down")}, nil, nil).Detect(context.Background(), DefaultOptions())
	assert.Error(t, err)
}
