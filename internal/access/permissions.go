// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"errors"
	"slices"
)

// ErrUnknownPreset is returned for a preset name that does not exist.
var ErrUnknownPreset = errors.New("unknown permission preset")

// Capability groups. Presets compose these groups rather than inheriting.

var viewPowers = []Capability{CapView}

var playerPowers = []Capability{CapChangeStatus}

var contributorPowers = []Capability{CapAdd}

var editorPowers = []Capability{CapEdit}

var deletePowers = []Capability{CapDelete}

// Preset names.
const (
	PresetViewOnly    = "view-only"
	PresetPlayer      = "player"
	PresetContributor = "contributor"
	PresetEditor      = "editor"
	PresetFull        = "full"
)

// Presets returns the named permission presets. Every preset is a full Set:
// capabilities outside the preset are explicitly denied.
func Presets() map[string]Set {
	return map[string]Set{
		PresetViewOnly:    grant(viewPowers),
		PresetPlayer:      grant(compose(viewPowers, playerPowers)),
		PresetContributor: grant(compose(viewPowers, playerPowers, contributorPowers)),
		PresetEditor:      grant(compose(viewPowers, playerPowers, contributorPowers, editorPowers)),
		PresetFull:        grant(compose(viewPowers, playerPowers, contributorPowers, editorPowers, deletePowers)),
	}
}

// PresetNames lists the presets from least to most privileged.
func PresetNames() []string {
	return []string{PresetViewOnly, PresetPlayer, PresetContributor, PresetEditor, PresetFull}
}

// Preset looks up a preset by name.
func Preset(name string) (Set, error) {
	set, ok := Presets()[name]
	if !ok {
		return nil, ErrUnknownPreset
	}
	return set, nil
}

// DefaultPermissions returns the stock defaults: view only.
func DefaultPermissions() Set {
	return grant(viewPowers)
}

func grant(caps []Capability) Set {
	set := make(Set, len(Capabilities()))
	for _, c := range Capabilities() {
		set[c] = slices.Contains(caps, c)
	}
	return set
}

// compose merges multiple capability slices into one.
func compose(groups ...[]Capability) []Capability {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]Capability, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
