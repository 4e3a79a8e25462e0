package severity

import (
	"math"
	"strings"

	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
)

// Bucket is the coarse grouping used for per-work alert counts.
type Bucket string

const (
	BucketCritical Bucket = normalize.GravedadCritica
	BucketModerate Bucket = normalize.GravedadMedia
	BucketLight    Bucket = normalize.GravedadLeve
	BucketNone     Bucket = ""
)

// BucketOf is the single classifier for severity counts. It builds on
// normalize.Gravedad so that "CRÍTICA", "Alta " and "high" land together.
func BucketOf(raw string) Bucket {
	switch normalize.Gravedad(raw) {
	case normalize.GravedadCritica, normalize.GravedadAlta:
		return BucketCritical
	case normalize.GravedadMedia:
		return BucketModerate
	case normalize.GravedadLeve, normalize.GravedadBaja:
		return BucketLight
	}
	return BucketNone
}

func BucketOfAlert(a model.MappedAlert) Bucket {
	return BucketOf(a.SeverityValue())
}

// Calculate classifies one alert against thresholds:
//  1. base level from the severity text,
//  2. impact escalation unless already critical,
//  3. one extra step when the alert changes the project.
func Calculate(a model.MappedAlert, th model.SeverityThresholds) model.Level {
	gravedad := strings.ToLower(strings.TrimSpace(a.SeverityValue()))
	impact := strings.ToLower(strings.TrimSpace(a.RiskImpact))

	level := model.LevelOK
	switch {
	case gravedad != "" && (contains(th.Critical.Gravedad, gravedad) || gravedad == normalize.GravedadCritica):
		level = model.LevelCritical
	case gravedad != "" && contains(th.Warning.Gravedad, gravedad):
		level = model.LevelWarning
	}

	if level != model.LevelCritical && impact != "" {
		if contains(th.Critical.RiskImpact, impact) {
			level = model.LevelWarning
		} else if contains(th.Warning.RiskImpact, impact) && level == model.LevelOK {
			level = model.LevelWarning
		}
	}

	if a.GeneratesProjectChange {
		level = Escalate(level)
	}
	return level
}

// Escalate moves one step up; critical stays critical.
func Escalate(l model.Level) model.Level {
	switch l {
	case model.LevelOK:
		return model.LevelWarning
	case model.LevelWarning, model.LevelCritical:
		return model.LevelCritical
	}
	return model.LevelWarning
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == target {
			return true
		}
	}
	return false
}

type Percentages struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	OK       int `json:"ok"`
}

type Distribution struct {
	Total       int         `json:"total"`
	Critical    int         `json:"critical"`
	Warning     int         `json:"warning"`
	OK          int         `json:"ok"`
	Percentages Percentages `json:"percentages"`
}

// AnalyzeDistribution counts alerts per level. Percentages are rounded shares
// of Total and stay zero for an empty input.
func AnalyzeDistribution(alerts []model.MappedAlert, th model.SeverityThresholds) Distribution {
	d := Distribution{Total: len(alerts)}
	for _, a := range alerts {
		switch Calculate(a, th) {
		case model.LevelCritical:
			d.Critical++
		case model.LevelWarning:
			d.Warning++
		default:
			d.OK++
		}
	}
	if d.Total > 0 {
		d.Percentages = Percentages{
			Critical: percent(d.Critical, d.Total),
			Warning:  percent(d.Warning, d.Total),
			OK:       percent(d.OK, d.Total),
		}
	}
	return d
}

func percent(n, total int) int {
	return int(math.Round(float64(n) * 100 / float64(total)))
}
