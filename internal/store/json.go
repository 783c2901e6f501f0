package store

import "encoding/json"

// marshalJSON encodes v to its JSON string form, falling back to an empty
// object/array literal on a nil input so NOT NULL JSON columns always hold
// valid JSON.
func marshalJSON(v interface{}, emptyLiteral string) string {
	if v == nil {
		return emptyLiteral
	}
	b, err := json.Marshal(v)
	if err != nil {
		return emptyLiteral
	}
	return string(b)
}

func unmarshalStringSlice(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func unmarshalMap(raw string) map[string]interface{} {
	out := map[string]interface{}{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func unmarshalZones(raw string) []Zone {
	var out []Zone
	if raw == "" {
		return []Zone{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []Zone{}
	}
	if out == nil {
		out = []Zone{}
	}
	return out
}
