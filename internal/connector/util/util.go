package util

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConvertConfig decodes a raw yaml section (usually map[string]any) into the
// typed config pointed to by out.
func ConvertConfig(raw any, out any) error {
	if raw == nil {
		return nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal typed config: %w", err)
	}

	return nil
}

// SeqID returns a decimal id for n.
func SeqID(n uint64) string {
	return strconv.FormatUint(n, 10)
}
