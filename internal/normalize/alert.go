package normalize

import (
	"strings"

	"github.com/google/uuid"

	"obrawatch/internal/model"
)

const (
	DefaultWorkName  = "Sin nombre"
	DefaultWorkState = "desconocido"
)

// alertIDNamespace seeds deterministic ids for alerts whose source record has none.
var alertIDNamespace = uuid.MustParse("6f1c2f8e-3b0a-5d6e-9c41-7a2f0b8d4e13")

// Alerts lists the raw keys seen per canonical alert field, most specific first.
var Alerts = AliasTable{
	"id":                 {"id", "ID", "ID ALERTA", "id_alerta", "_id"},
	"work_id":            {"ID OBRA", "id_obra", "idObra", "obra_id", "ID_OBRA"},
	"work_name":          {"NOMBRE OBRA", "nombre_obra", "nombreObra", "NOMBRE DE LA OBRA", "NOMBRE", "nombre"},
	"work_state":         {"ESTADO OBRA", "estado_obra", "ESTADO DE LA OBRA", "ESTADO", "estado"},
	"department":         {"DEPENDENCIA", "dependencia", "SECRETARÍA", "secretaria"},
	"district":           {"COMUNA O CORREGIMIENTO", "comuna_corregimiento", "COMUNA", "comuna", "CORREGIMIENTO"},
	"strategic_project":  {"PROYECTO ESTRATÉGICO", "PROYECTO ESTRATEGICO", "proyecto_estrategico", "proyectoEstrategico"},
	"description":        {"DESCRIPCIÓN DEL RIESGO", "descripcion_riesgo", "DESCRIPCIÓN ALERTA", "descripcion_alerta", "DESCRIPCIÓN", "descripcion"},
	"alert_date":         {"FECHA DE LA ALERTA", "fecha_alerta", "FECHA ALERTA", "fechaAlerta", "FECHA", "fecha"},
	"risk_impact":        {"IMPACTO DEL RIESGO", "impacto_riesgo", "IMPACTO", "impacto"},
	"generates_change":   {"¿GENERA CAMBIO EN EL PROYECTO?", "GENERA CAMBIO EN EL PROYECTO", "genera_cambio_proyecto", "genera_cambio"},
	"change_description": {"DESCRIPCIÓN DEL CAMBIO", "descripcion_cambio"},
	"change_approver":    {"APROBADOR DEL CAMBIO", "aprobador_cambio", "QUIÉN APRUEBA EL CAMBIO"},
	"severity":           {"GRAVEDAD", "gravedad", "Gravedad", "severity"},
	"created_at":         {"created_at", "createdAt", "FECHA CREACIÓN"},
	"created_by":         {"created_by", "createdBy", "CREADO POR"},
	"updated_at":         {"updated_at", "updatedAt", "FECHA ACTUALIZACIÓN"},
	"updated_by":         {"updated_by", "updatedBy", "ACTUALIZADO POR"},
}

// MapAlert never fails: every missing field falls back to a default.
func MapAlert(raw model.RawRecord) model.MappedAlert {
	a := model.MappedAlert{
		WorkID:                 Alerts.String(raw, "work_id", ""),
		WorkName:               Alerts.String(raw, "work_name", DefaultWorkName),
		WorkState:              Alerts.String(raw, "work_state", DefaultWorkState),
		Department:             Alerts.String(raw, "department", ""),
		District:               Alerts.String(raw, "district", ""),
		StrategicProject:       Alerts.String(raw, "strategic_project", ""),
		Description:            Alerts.String(raw, "description", ""),
		AlertDate:              Alerts.String(raw, "alert_date", ""),
		RiskImpact:             Alerts.String(raw, "risk_impact", ""),
		GeneratesProjectChange: Alerts.Bool(raw, "generates_change"),
		ChangeDescription:      Alerts.String(raw, "change_description", ""),
		ChangeApprover:         Alerts.String(raw, "change_approver", ""),
		CreatedAt:              Alerts.String(raw, "created_at", ""),
		CreatedBy:              Alerts.String(raw, "created_by", ""),
		UpdatedAt:              Alerts.String(raw, "updated_at", ""),
		UpdatedBy:              Alerts.String(raw, "updated_by", ""),
	}
	// Severity keys are matched verbatim; absence stays nil rather than "".
	if v, ok := Alerts.LookupExact(raw, "severity"); ok {
		s := ToString(v)
		a.Severity = &s
	}
	a.ID = Alerts.String(raw, "id", "")
	if a.ID == "" {
		a.ID = DeriveAlertID(a.WorkID, a.AlertDate, a.Description)
	}
	return a
}

func MapAlerts(raws []model.RawRecord) []model.MappedAlert {
	out := make([]model.MappedAlert, 0, len(raws))
	for _, raw := range raws {
		out = append(out, MapAlert(raw))
	}
	return out
}

// DeriveAlertID builds a stable UUIDv5 from the fields that identify an alert.
func DeriveAlertID(workID, alertDate, description string) string {
	name := strings.Join([]string{workID, alertDate, description}, "|")
	return uuid.NewSHA1(alertIDNamespace, []byte(name)).String()
}
