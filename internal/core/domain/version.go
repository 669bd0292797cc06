package domain

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// RequirementKind is the classification of a version requirement.
type RequirementKind int

const (
	// RequirementInvalid is neither semver nor a content locator.
	RequirementInvalid RequirementKind = iota
	// RequirementUniversal matches any version and resolves to the latest.
	RequirementUniversal
	// RequirementExact is a single strict semver version.
	RequirementExact
	// RequirementRange is a semver range expression.
	RequirementRange
	// RequirementLocator is a content-locator literal that names its own content.
	RequirementLocator
)

// String returns the name of the kind.
func (k RequirementKind) String() string {
	switch k {
	case RequirementUniversal:
		return "universal"
	case RequirementExact:
		return "exact"
	case RequirementRange:
		return "range"
	case RequirementLocator:
		return "locator"
	default:
		return "invalid"
	}
}

var locatorPrefixes = []string{"/ipfs/", "ipfs://", "/content/"}

// CIDv0 is base58btc of length 46 starting with Qm; CIDv1 in base32 starts with b.
var cidPattern = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}|b[a-z2-7]{58,})$`)

// IsContentLocator reports whether s is a content-locator literal rather than a semver expression.
func IsContentLocator(s string) bool {
	for _, prefix := range locatorPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return cidPattern.MatchString(s)
}

// IsUniversal reports whether req matches every version.
func IsUniversal(req string) bool {
	switch strings.TrimSpace(req) {
	case "", "*", "x", "X", "latest":
		return true
	default:
		return false
	}
}

// ClassifyRequirement returns the kind of a version requirement.
func ClassifyRequirement(req string) RequirementKind {
	r := strings.TrimSpace(req)
	switch {
	case IsUniversal(r):
		return RequirementUniversal
	case IsContentLocator(r):
		return RequirementLocator
	}
	if _, err := semver.StrictNewVersion(r); err == nil {
		return RequirementExact
	}
	if _, err := semver.NewConstraint(r); err == nil {
		return RequirementRange
	}
	return RequirementInvalid
}

// VersionRecord is one published version of a package and where its content lives.
type VersionRecord struct {
	Version        string `json:"version"`
	ContentLocator string `json:"contentLocator"`
}

// Resolved reports whether the record carries a content locator.
func (r VersionRecord) Resolved() bool {
	return r.ContentLocator != ""
}

// LocatorRecord returns the record for a content-locator literal used as a version.
func LocatorRecord(locator string) VersionRecord {
	return VersionRecord{Version: locator, ContentLocator: locator}
}

// ResolvedDependencySet maps package names to the exact version selected for each.
type ResolvedDependencySet map[string]VersionRecord

// Names returns the package names in the set, sorted.
func (s ResolvedDependencySet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// FleetSnapshot maps installed package names to their installed version.
type FleetSnapshot map[string]string

// Installed reports whether name is installed at any version.
func (f FleetSnapshot) Installed(name string) bool {
	_, ok := f[name]
	return ok
}
