package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"obrawatch/internal/model"
)

// AliasTable maps a canonical field name to the ordered list of raw keys that
// upstream APIs have been seen to use for it.
type AliasTable map[string][]string

// Lookup returns the first non-empty value among the candidate keys of field.
// Candidates are tried verbatim first, then against folded raw keys so that
// "ID OBRA", "id_obra" and "Id Obra" resolve alike.
func (t AliasTable) Lookup(raw model.RawRecord, field string) (any, string, bool) {
	candidates := t[field]
	if len(candidates) == 0 || len(raw) == 0 {
		return nil, "", false
	}
	for _, key := range candidates {
		if v, ok := raw[key]; ok && !isEmpty(v) {
			return v, key, true
		}
	}
	folded := make(map[string]string, len(raw))
	for key := range raw {
		fk := FoldKey(key)
		if _, dup := folded[fk]; !dup {
			folded[fk] = key
		}
	}
	for _, key := range candidates {
		if rawKey, ok := folded[FoldKey(key)]; ok {
			if v := raw[rawKey]; !isEmpty(v) {
				return v, rawKey, true
			}
		}
	}
	return nil, "", false
}

// LookupExact only considers candidate keys spelled exactly as listed.
func (t AliasTable) LookupExact(raw model.RawRecord, field string) (any, bool) {
	for _, key := range t[field] {
		if v, ok := raw[key]; ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func (t AliasTable) String(raw model.RawRecord, field, def string) string {
	v, _, ok := t.Lookup(raw, field)
	if !ok {
		return def
	}
	s := strings.TrimSpace(ToString(v))
	if s == "" {
		return def
	}
	return s
}

func (t AliasTable) Float(raw model.RawRecord, field string) float64 {
	v, _, ok := t.Lookup(raw, field)
	if !ok {
		return 0
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0
	}
	return f
}

func (t AliasTable) Bool(raw model.RawRecord, field string) bool {
	v, _, ok := t.Lookup(raw, field)
	if !ok {
		return false
	}
	return ToBool(v)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// ToString renders scalar JSON values without float noise: 100 -> "100".
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		return ParseAmount(val)
	}
	return 0, false
}

// ToBool accepts "si"/"sí"/"true" in any casing for strings and JS-like
// truthiness for every other type.
func ToBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch Fold(val) {
		case "si", "true":
			return true
		}
		return false
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	}
	return true
}
