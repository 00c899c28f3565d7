package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAssignment turns "key=value" into a Patch. Keys accept both the wire
// names (apiBaseUrl) and the settings-file names (endpoint_base_url).
func ParseAssignment(kv string) (Patch, error) {
	key, val, ok := strings.Cut(kv, "=")
	if !ok {
		return Patch{}, fmt.Errorf("expected key=value, got %q", kv)
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	var p Patch
	switch strings.ToLower(key) {
	case "apibaseurl", "endpoint_base_url", "endpoint":
		p.EndpointBaseURL = &val
	case "threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Patch{}, fmt.Errorf("threshold: %w", err)
		}
		p.Threshold = &f
	case "apikey", "credential":
		p.Credential = &val
	case "provider":
		p.Provider = &val
	case "model":
		p.Model = &val
	default:
		return Patch{}, fmt.Errorf("unknown setting %q", key)
	}
	return p, nil
}

// Merge overlays the non-nil fields of o onto p
func (p Patch) Merge(o Patch) Patch {
	if o.EndpointBaseURL != nil {
		p.EndpointBaseURL = o.EndpointBaseURL
	}
	if o.Threshold != nil {
		p.Threshold = o.Threshold
	}
	if o.Credential != nil {
		p.Credential = o.Credential
	}
	if o.Provider != nil {
		p.Provider = o.Provider
	}
	if o.Model != nil {
		p.Model = o.Model
	}
	return p
}
