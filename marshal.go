package appraise

import (
	"encoding/json"
)

// Marshal create a single point of change if the encoding of fact payloads changes.
func Marshal[T any](t *T) ([]byte, error) {
	return json.Marshal(t)
}
