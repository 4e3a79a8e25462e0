package normalize

import "strings"

const (
	GravedadCritica   = "crítica"
	GravedadAlta      = "alta"
	GravedadMedia     = "media"
	GravedadLeve      = "leve"
	GravedadBaja      = "baja"
	GravedadSinRiesgo = "sin_riesgo"
)

var gravedadSynonyms = map[string]string{
	"critica":    GravedadCritica,
	"critico":    GravedadCritica,
	"critical":   GravedadCritica,
	"muy alta":   GravedadCritica,
	"muy alto":   GravedadCritica,
	"alta":       GravedadAlta,
	"alto":       GravedadAlta,
	"high":       GravedadAlta,
	"media":      GravedadMedia,
	"medio":      GravedadMedia,
	"moderada":   GravedadMedia,
	"moderado":   GravedadMedia,
	"medium":     GravedadMedia,
	"moderate":   GravedadMedia,
	"leve":       GravedadLeve,
	"menor":      GravedadLeve,
	"info":       GravedadLeve,
	"minor":      GravedadLeve,
	"baja":       GravedadBaja,
	"bajo":       GravedadBaja,
	"low":        GravedadBaja,
	"sin riesgo": GravedadSinRiesgo,
	"sin_riesgo": GravedadSinRiesgo,
	"ninguna":    GravedadSinRiesgo,
	"ninguno":    GravedadSinRiesgo,
	"none":       GravedadSinRiesgo,
}

// Gravedad maps free-text severity to one of crítica, alta, media, leve, baja,
// sin_riesgo, or "" when the value is empty or unknown. Gravedad(Gravedad(x)) == Gravedad(x).
func Gravedad(raw string) string {
	key := strings.Join(strings.Fields(Fold(raw)), " ")
	if key == "" {
		return ""
	}
	return gravedadSynonyms[key]
}

// GravedadOf normalizes an optional severity; nil and "" are both unclassified.
func GravedadOf(raw *string) string {
	if raw == nil {
		return ""
	}
	return Gravedad(*raw)
}
