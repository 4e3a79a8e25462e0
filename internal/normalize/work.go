package normalize

import (
	"obrawatch/internal/model"
)

var Works = AliasTable{
	"id":                      {"id", "ID", "ID OBRA", "id_obra", "idObra", "_id"},
	"name":                    {"NOMBRE", "nombre", "NOMBRE OBRA", "nombre_obra", "NOMBRE DE LA OBRA"},
	"state":                   {"ESTADO", "estado", "ESTADO OBRA", "estado_obra", "ESTADO DE LA OBRA"},
	"department":              {"DEPENDENCIA", "dependencia", "SECRETARÍA", "secretaria"},
	"district":                {"COMUNA O CORREGIMIENTO", "comuna_corregimiento", "COMUNA", "comuna"},
	"strategic_project":       {"PROYECTO ESTRATÉGICO", "PROYECTO ESTRATEGICO", "proyecto_estrategico"},
	"intervention_type":       {"TIPO DE INTERVENCIÓN", "tipo_intervencion", "TIPO INTERVENCIÓN", "TIPO DE OBRA"},
	"current_phase":           {"ETAPA ACTUAL", "etapa_actual", "FASE ACTUAL", "fase_actual", "ETAPA"},
	"contractor":              {"CONTRATISTA", "contratista"},
	"supervisor":              {"INTERVENTORÍA", "interventoria", "SUPERVISOR", "supervisor"},
	"bpin":                    {"CÓDIGO BPIN", "codigo_bpin", "BPIN", "bpin"},
	"contract_number":         {"NÚMERO DE CONTRATO", "numero_contrato", "CONTRATO"},
	"latitude":                {"LATITUD", "latitud", "lat"},
	"longitude":               {"LONGITUD", "longitud", "lng", "lon"},
	"address":                 {"DIRECCIÓN", "direccion"},
	"total_cost":              {"COSTO TOTAL", "costo_total", "VALOR TOTAL"},
	"updated_total_cost":      {"COSTO TOTAL ACTUALIZADO", "costo_total_actualizado", "COSTO ACTUALIZADO"},
	"executed_budget":         {"PRESUPUESTO EJECUTADO", "presupuesto_ejecutado", "VALOR EJECUTADO"},
	"executed_budget_percent": {"PORCENTAJE EJECUCIÓN FINANCIERA", "% EJECUCIÓN FINANCIERA", "porcentaje_ejecucion_financiera", "% PRESUPUESTO EJECUTADO"},
	"start_date":              {"FECHA INICIO", "fecha_inicio", "FECHA DE INICIO"},
	"estimated_delivery_date": {"FECHA ESTIMADA DE ENTREGA", "fecha_estimada_entrega", "FECHA ENTREGA ESTIMADA", "FECHA ESTIMADA ENTREGA"},
	"delivered":               {"¿OBRA ENTREGADA?", "OBRA ENTREGADA", "obra_entregada"},
	"partially_delivered":     {"¿ENTREGA PARCIAL?", "ENTREGA PARCIAL", "entrega_parcial"},
}

// PhaseNames are the stages tracked per work. Each phase contributes up to
// three raw keys: "% <PHASE>", "FECHA INICIO <PHASE>" and "FECHA FIN <PHASE>".
var PhaseNames = []string{
	"PLANEACIÓN",
	"ESTUDIOS PRELIMINARES",
	"DISEÑOS",
	"GESTIÓN PREDIAL",
	"LICENCIAS Y PERMISOS",
	"PRESUPUESTO",
	"CONTRATACIÓN",
	"ACTA DE INICIO",
	"EJECUCIÓN",
	"INTERVENTORÍA",
	"ENTREGA PARCIAL",
	"LIQUIDACIÓN",
	"ENTREGA FINAL",
}

var phaseTable = buildPhaseTable()

func buildPhaseTable() AliasTable {
	t := AliasTable{}
	for _, name := range PhaseNames {
		t["%"+name] = []string{"% " + name, "PORCENTAJE " + name}
		t["start "+name] = []string{"FECHA INICIO " + name}
		t["end "+name] = []string{"FECHA FIN " + name}
	}
	return t
}

func WorkID(raw model.RawRecord) string {
	return Works.String(raw, "id", "")
}

// Phases returns the phases that carry any data in raw, in PhaseNames order,
// plus the raw keys they consumed.
func Phases(raw model.RawRecord) ([]model.Phase, map[string]struct{}) {
	used := map[string]struct{}{}
	var out []model.Phase
	for _, name := range PhaseNames {
		pct, pctKey, hasPct := phaseTable.Lookup(raw, "%"+name)
		start, startKey, hasStart := phaseTable.Lookup(raw, "start "+name)
		end, endKey, hasEnd := phaseTable.Lookup(raw, "end "+name)
		if !hasPct && !hasStart && !hasEnd {
			continue
		}
		p := model.Phase{Name: name}
		if hasPct {
			p.Percent, _ = ToFloat(pct)
			used[pctKey] = struct{}{}
		}
		if hasStart {
			p.StartDate = ToString(start)
			used[startKey] = struct{}{}
		}
		if hasEnd {
			p.EndDate = ToString(end)
			used[endKey] = struct{}{}
		}
		out = append(out, p)
	}
	return out, used
}
