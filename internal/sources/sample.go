package sources

import (
	_ "embed"
	"encoding/json"

	"obrawatch/internal/model"
)

//go:embed sample_alerts.json
var sampleAlertsJSON []byte

// SampleAlerts returns a fresh copy of the built-in alerts served when the
// alerts endpoint is unreachable.
func SampleAlerts() []model.RawRecord {
	var out []model.RawRecord
	if err := json.Unmarshal(sampleAlertsJSON, &out); err != nil {
		panic("sources: invalid embedded sample: " + err.Error())
	}
	return out
}
