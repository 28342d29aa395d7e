// Package settings loads the optional installer settings file. The file can
// widen or narrow the built-in version bounds without rebuilding the tool.
package settings

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/couchbase/cb-non-package-installer/internal/messages"
	"github.com/couchbase/cb-non-package-installer/internal/policy"
	"github.com/couchbase/cb-non-package-installer/internal/version"
)

// Settings mirrors the TOML settings file:
//
//	[versions]
//	min = "6.0.0"
//	max = "8.0.0"
type Settings struct {
	Versions Versions `toml:"versions"`
}

// Versions holds the optional bound overrides as MAJOR.MINOR.MAINT strings.
type Versions struct {
	Min string `toml:"min"`
	Max string `toml:"max"`
}

// Load reads and parses the settings file at path. Unknown keys are rejected
// so typos surface instead of being silently ignored.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.SettingsReadFmt, path, err)
	}
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var s Settings
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf(messages.SettingsDecodeFmt, path, err)
	}
	return &s, nil
}

// Bounds applies the overrides in s on top of the built-in policy bounds.
// Empty fields keep their defaults.
func (s *Settings) Bounds() (policy.Bounds, error) {
	bounds := policy.DefaultBounds()
	if s == nil {
		return bounds, nil
	}
	if s.Versions.Min != "" {
		v, err := version.Parse(s.Versions.Min)
		if err != nil {
			return policy.Bounds{}, fmt.Errorf(messages.SettingsVersionFmt, "versions.min", s.Versions.Min)
		}
		bounds.Min = v
	}
	if s.Versions.Max != "" {
		v, err := version.Parse(s.Versions.Max)
		if err != nil {
			return policy.Bounds{}, fmt.Errorf(messages.SettingsVersionFmt, "versions.max", s.Versions.Max)
		}
		bounds.Max = v
	}
	if bounds.Min.Compare(bounds.Max) > 0 {
		return policy.Bounds{}, fmt.Errorf(messages.SettingsOrderFmt, bounds.Min, bounds.Max)
	}
	return bounds, nil
}
