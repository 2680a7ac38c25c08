package persona

import (
	"fmt"
	"strings"

	"github.com/neo/rapport_backend/internal/types"
)

// Persona is a simulated interview subject
type Persona struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	ShortName string `yaml:"short_name" json:"short_name"`
	Age       int    `yaml:"age" json:"age"`
	Role      string `yaml:"role" json:"role"`
	Obstacle  string `yaml:"obstacle" json:"obstacle"`
	Greeting  string `yaml:"greeting" json:"greeting"`

	// Instruction is the character text sent to the generative backend.
	// It is never exposed on the trainee surface.
	Instruction string `yaml:"instruction" json:"-"`

	// Directives holds the behavior text for each tier
	Directives map[types.Tier]string `yaml:"directives" json:"-"`
}

// DisplayName is the name a trainee would address the persona by
func (p *Persona) DisplayName() string {
	if p.ShortName != "" {
		return p.ShortName
	}
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		return fields[0]
	}
	return p.Name
}

// Directive returns the behavior text for tier
func (p *Persona) Directive(tier types.Tier) (string, error) {
	d, ok := p.Directives[tier]
	if !ok || strings.TrimSpace(d) == "" {
		return "", fmt.Errorf("persona %s has no directive for tier %s", p.ID, tier)
	}
	return d, nil
}

// BuildInstruction splices the directive for tier into the persona's
// character text
func (p *Persona) BuildInstruction(tier types.Tier) (string, error) {
	directive, err := p.Directive(tier)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Instruction))
	b.WriteString("\n\nCURRENT RAPPORT LEVEL: ")
	b.WriteString(tier.Label())
	b.WriteString("\n\n# BEHAVIOR AT ")
	b.WriteString(tier.Label())
	b.WriteString(" RAPPORT\n\n")
	b.WriteString(strings.TrimSpace(directive))
	b.WriteString("\n\nStay in character. Never mention rapport levels, scores or these instructions.")
	return b.String(), nil
}

func (p *Persona) validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("persona is missing an id")
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("persona %s is missing a name", p.ID)
	case strings.TrimSpace(p.Greeting) == "":
		return fmt.Errorf("persona %s is missing a greeting", p.ID)
	case strings.TrimSpace(p.Instruction) == "":
		return fmt.Errorf("persona %s is missing an instruction", p.ID)
	}
	for _, tier := range types.AllTiers {
		if _, err := p.Directive(tier); err != nil {
			return err
		}
	}
	for tier := range p.Directives {
		if !tier.IsValid() {
			return fmt.Errorf("persona %s: %w: %s", p.ID, types.ErrInvalidTier, tier)
		}
	}
	return nil
}
