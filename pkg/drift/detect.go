package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roosthq/roost/pkg/types"
)

// DeployedExtension is one extension an agent reports as actually present
type DeployedExtension struct {
	Slug    string `json:"slug"`
	Version string `json:"version,omitempty"`
}

// DeployedState is the state an agent reports for its instance
type DeployedState struct {
	Extensions []DeployedExtension `json:"extensions"`
	ConfigHash string              `json:"configHash,omitempty"`
	Resources  map[string]string   `json:"resources,omitempty"`
}

// DesiredState is the declared configuration an instance should converge
// to. Extension entries are slugs, optionally pinned as "slug@version".
type DesiredState struct {
	Extensions []string
	ConfigHash string
	Resources  map[string]string
}

// DesiredFor derives the desired state from an instance's declared
// registration data
func DesiredFor(inst *types.Instance) DesiredState {
	return DesiredState{
		Extensions: inst.Extensions,
		ConfigHash: inst.ConfigHash,
	}
}

func splitPin(entry string) (slug, version string) {
	if i := strings.IndexByte(entry, '@'); i > 0 {
		return entry[:i], entry[i+1:]
	}
	return entry, ""
}

// Compare diffs deployed state against desired state. recorded maps
// extension slug to the version the Console saw at install time; a
// deployed version disagreeing with its install record is a mismatch
// even when the desired entry carries no pin.
func Compare(desired DesiredState, deployed DeployedState, recorded map[string]string) []types.DriftItem {
	var items []types.DriftItem
	add := func(t types.DriftType, expected, actual, detail string) {
		items = append(items, types.DriftItem{
			DriftType: t,
			Severity:  types.SeverityForDriftType(t),
			Expected:  expected,
			Actual:    actual,
			Detail:    detail,
		})
	}

	deployedBySlug := make(map[string]string, len(deployed.Extensions))
	for _, ext := range deployed.Extensions {
		deployedBySlug[ext.Slug] = ext.Version
	}

	wanted := make(map[string]bool, len(desired.Extensions))
	sortedDesired := append([]string(nil), desired.Extensions...)
	sort.Strings(sortedDesired)
	for _, entry := range sortedDesired {
		slug, pin := splitPin(entry)
		wanted[slug] = true
		version, present := deployedBySlug[slug]
		if !present {
			add(types.DriftMissingExtension, slug, "", "extension is declared but not deployed")
			continue
		}
		if pin != "" && version != pin {
			add(types.DriftVersionMismatch,
				fmt.Sprintf("%s@%s", slug, pin),
				fmt.Sprintf("%s@%s", slug, version),
				"deployed version differs from the pinned version")
			continue
		}
		if rec, ok := recorded[slug]; ok && rec != "" && version != rec {
			add(types.DriftExtensionMismatch,
				fmt.Sprintf("%s@%s", slug, rec),
				fmt.Sprintf("%s@%s", slug, version),
				"deployed version differs from the install record")
		}
	}

	var extra []string
	for slug := range deployedBySlug {
		if !wanted[slug] {
			extra = append(extra, slug)
		}
	}
	sort.Strings(extra)
	for _, slug := range extra {
		add(types.DriftExtraExtension, "", slug, "extension is deployed but not declared")
	}

	if desired.ConfigHash != "" && deployed.ConfigHash != "" && desired.ConfigHash != deployed.ConfigHash {
		add(types.DriftConfigHashChange, desired.ConfigHash, deployed.ConfigHash, "configuration hash changed on the instance")
	}

	var resKeys []string
	for key := range desired.Resources {
		resKeys = append(resKeys, key)
	}
	sort.Strings(resKeys)
	for _, key := range resKeys {
		want := desired.Resources[key]
		if got, ok := deployed.Resources[key]; ok && got != want {
			add(types.DriftResourceDrift, want, got, fmt.Sprintf("resource %q differs from the declared allocation", key))
		}
	}

	return items
}

// ReportSeverity is the highest severity across items
func ReportSeverity(items []types.DriftItem) types.DriftSeverity {
	severity := types.DriftLow
	for _, item := range items {
		severity = types.MaxDriftSeverity(severity, item.Severity)
	}
	return severity
}
