package types

import (
	"fmt"
	"strings"
)

// Tier represents a disclosure band derived from the rapport score
type Tier string

const (
	TierLow    Tier = "low"    // Guarded, short answers, no disclosure
	TierMedium Tier = "medium" // Opening up, partial disclosure
	TierHigh   Tier = "high"   // Trusting, willing to share sensitive details
)

// Polarity represents the direction a signal pushes the rapport score
type Polarity string

const (
	PolarityBuildsTrust  Polarity = "builds_trust"
	PolarityDamagesTrust Polarity = "damages_trust"
	// PolaritySystem marks synthetic entries such as cap adjustments
	PolaritySystem Polarity = "system"
)

// Role identifies who produced a transcript turn
type Role string

const (
	RoleTrainee Role = "trainee"
	RolePersona Role = "persona"
)

var (
	// AllTiers contains all tiers ordered from least to most trusting
	AllTiers = []Tier{
		TierLow,
		TierMedium,
		TierHigh,
	}

	// AllPolarities contains all valid polarities
	AllPolarities = []Polarity{
		PolarityBuildsTrust,
		PolarityDamagesTrust,
		PolaritySystem,
	}

	// tierMap maps string values to Tier
	tierMap = map[string]Tier{
		string(TierLow):    TierLow,
		string(TierMedium): TierMedium,
		string(TierHigh):   TierHigh,
	}

	// polarityMap maps string values to Polarity
	polarityMap = map[string]Polarity{
		string(PolarityBuildsTrust):  PolarityBuildsTrust,
		string(PolarityDamagesTrust): PolarityDamagesTrust,
		string(PolaritySystem):       PolaritySystem,
	}

	roleMap = map[string]Role{
		string(RoleTrainee): RoleTrainee,
		string(RolePersona): RolePersona,
	}
)

// Error types for invalid values
var (
	ErrInvalidTier     = fmt.Errorf("invalid tier")
	ErrInvalidPolarity = fmt.Errorf("invalid polarity")
	ErrInvalidRole     = fmt.Errorf("invalid role")
)

// IsValid checks if the Tier is valid
func (t Tier) IsValid() bool {
	_, ok := tierMap[string(t)]
	return ok
}

// String converts the enum to string
func (t Tier) String() string {
	return string(t)
}

// Label returns the upper-case label used in persona instructions and reports
func (t Tier) Label() string {
	return strings.ToUpper(string(t))
}

// ParseTier parses a string into a Tier. Matching ignores case so that
// "HIGH" and "high" both resolve.
func ParseTier(s string) (Tier, error) {
	if tier, ok := tierMap[strings.ToLower(strings.TrimSpace(s))]; ok {
		return tier, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidTier, s)
}

// GetAllTiers returns all valid tiers
func GetAllTiers() []Tier {
	return AllTiers
}

// Description returns a human-readable description of the tier
func (t Tier) Description() string {
	switch t {
	case TierLow:
		return "Guarded, short answers, no disclosure"
	case TierMedium:
		return "Opening up, partial disclosure"
	case TierHigh:
		return "Trusting, willing to share sensitive details"
	default:
		return "Unknown tier"
	}
}

// IsValid checks if the Polarity is valid
func (p Polarity) IsValid() bool {
	_, ok := polarityMap[string(p)]
	return ok
}

// String converts the enum to string
func (p Polarity) String() string {
	return string(p)
}

// ParsePolarity parses a string into a Polarity
func ParsePolarity(s string) (Polarity, error) {
	if p, ok := polarityMap[s]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidPolarity, s)
}

// IsValid checks if the Role is valid
func (r Role) IsValid() bool {
	_, ok := roleMap[string(r)]
	return ok
}

// String converts the enum to string
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a string into a Role
func ParseRole(s string) (Role, error) {
	if r, ok := roleMap[s]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidRole, s)
}
