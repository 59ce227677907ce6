package device

import (
	"encoding/json"
	"fmt"
)

// legacyKeys maps older field names to their current names per section.
var legacyKeys = map[string]map[string]string{
	"ir":      {"codes": "commands"},
	"saa3004": {"address": "sub_address"},
}

// deepMerge merges patch into base and returns base. Nested objects merge
// recursively; any other value in patch replaces the one in base.
func deepMerge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(patch))
	}
	for k, pv := range patch {
		pm, patchIsMap := pv.(map[string]any)
		bm, baseIsMap := base[k].(map[string]any)
		if patchIsMap && baseIsMap {
			base[k] = deepMerge(bm, pm)
			continue
		}
		base[k] = deepCopyValue(pv)
	}
	return base
}

// normalizePatch renames legacy keys so they merge onto their current names
// instead of sitting next to them.
func normalizePatch(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		section, ok := v.(map[string]any)
		renames := legacyKeys[k]
		if !ok || renames == nil {
			out[k] = v
			continue
		}
		fixed := make(map[string]any, len(section))
		for sk, sv := range section {
			if current, legacy := renames[sk]; legacy {
				if _, both := section[current]; both {
					continue
				}
				sk = current
			}
			fixed[sk] = sv
		}
		out[k] = fixed
	}
	return out
}

// toDocument converts a device into its generic JSON object form.
func toDocument(d *Device) (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshalling device: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling device document: %w", err)
	}
	return doc, nil
}

// fromDocument decodes a generic JSON object into a device.
func fromDocument(doc map[string]any) (*Device, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	var d Device
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	return &d, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
