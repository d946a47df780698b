package datastore

import "strings"

// House chamber names as stored in the `house` column.
const (
	HouseNationalAssembly = "national assembly"
	HouseSenate           = "senate"
	HouseAll              = "all"
	HouseUnspecified      = "unspecified"
)

// DeriveHouse is a pure function of title, mirroring the generated column the
// storage backend maintains (§6): both chamber names present (case
// insensitive) -> "all"; exactly one -> that chamber; neither -> "unspecified".
// This Go implementation exists purely so the derivation is independently
// testable without a live database; the persisted value always comes from
// the backend's own generated column, never from this function's caller.
func DeriveHouse(title string) string {
	lower := strings.ToLower(title)
	hasAssembly := strings.Contains(lower, "national assembly")
	hasSenate := strings.Contains(lower, "senate")

	switch {
	case hasAssembly && hasSenate:
		return HouseAll
	case hasAssembly:
		return HouseNationalAssembly
	case hasSenate:
		return HouseSenate
	default:
		return HouseUnspecified
	}
}
