package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ParseDevicesFile decodes a device export. Two shapes are accepted: a JSON
// array of device records, or an object keyed by device name as written by
// the standalone firmware's devices.json. In the keyed form the key wins over
// any "name" inside the record.
func ParseDevicesFile(data []byte) ([]Device, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var devices []Device
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &devices); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
		}
	case '{':
		var byName map[string]Device
		if err := json.Unmarshal(data, &byName); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
		}
		devices = make([]Device, 0, len(byName))
		for name, d := range byName {
			d.Name = name
			devices = append(devices, d)
		}
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrInvalidDevice)
	}

	for i := range devices {
		if devices[i].Protocol == "" {
			devices[i].Protocol = ProtocolIR
		}
	}
	slices.SortFunc(devices, func(a, b Device) int { return strings.Compare(a.Name, b.Name) })
	return devices, nil
}
