package docstore

import (
	"encoding/json"
	"fmt"
)

// MergeJSON overlays the top-level keys of patch onto base. Nested objects are
// replaced, not merged, matching the remote store's jsonb concatenation.
func MergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(base) == 0 {
		return patch, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("base document is not an object: %w", err)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("patch is not an object: %w", err)
	}
	if merged == nil {
		merged = make(map[string]json.RawMessage, len(overlay))
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return json.Marshal(merged)
}
