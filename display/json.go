package display

import (
	"encoding/json"
)

// MarshalJSON marshals v with pretty formatting. One serialization point
// keeps command output uniform and golden-file friendly.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
