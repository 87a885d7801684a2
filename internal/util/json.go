package util

import "encoding/json"

// ConvertStructToJson marshals a value to its JSON string, or "" when it
// cannot be marshaled.
func ConvertStructToJson(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
