package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/guardrail"
)

// catalogConstraint is the policy schema compatibility range this build
// understands. Policies from a newer major version are refused outright
// rather than half-applied.
const catalogConstraint = "^1.0"

// Policy is the operator-editable governance policy: who may run what, what
// runs unattended, how fast escalation fires, and any extra guardrail rules
// expressed as CEL.
type Policy struct {
	CatalogVersion     string                  `yaml:"catalog_version"`
	Permissions        map[string][]string     `yaml:"permissions"`
	TrustLevels        map[string]string       `yaml:"trust_levels"`
	EscalationTimeouts map[string]string       `yaml:"escalation_timeouts"`
	Rules              []guardrail.CELRuleSpec `yaml:"rules"`
	Notify             NotifyPolicy            `yaml:"notify"`
}

// NotifyPolicy bounds outbound notification throughput.
type NotifyPolicy struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// LoadPolicy reads and validates the policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the catalog version gate and the enum-valued fields.
func (p *Policy) Validate() error {
	if p.CatalogVersion == "" {
		return fmt.Errorf("catalog_version is required")
	}
	v, err := semver.NewVersion(p.CatalogVersion)
	if err != nil {
		return fmt.Errorf("catalog_version %q: %w", p.CatalogVersion, err)
	}
	constraint, err := semver.NewConstraint(catalogConstraint)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("catalog_version %s outside supported range %s", p.CatalogVersion, catalogConstraint)
	}

	for cmd, lvl := range p.TrustLevels {
		switch contracts.TrustLevel(lvl) {
		case contracts.TrustAuto, contracts.TrustApprove:
		default:
			return fmt.Errorf("trust_levels[%s]: unknown level %q", cmd, lvl)
		}
	}
	for pri, raw := range p.EscalationTimeouts {
		switch contracts.Priority(pri) {
		case contracts.PriorityP0, contracts.PriorityP1, contracts.PriorityP2, contracts.PriorityP3:
		default:
			return fmt.Errorf("escalation_timeouts: unknown priority %q", pri)
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("escalation_timeouts[%s]: %w", pri, err)
		}
	}
	return nil
}

// TrustLevelMap converts the raw level strings to their typed form.
func (p *Policy) TrustLevelMap() map[string]contracts.TrustLevel {
	out := make(map[string]contracts.TrustLevel, len(p.TrustLevels))
	for cmd, lvl := range p.TrustLevels {
		out[cmd] = contracts.TrustLevel(lvl)
	}
	return out
}

// TimeoutMap parses the escalation timeouts. Call after Validate.
func (p *Policy) TimeoutMap() map[contracts.Priority]time.Duration {
	out := make(map[contracts.Priority]time.Duration, len(p.EscalationTimeouts))
	for pri, raw := range p.EscalationTimeouts {
		d, err := time.ParseDuration(raw)
		if err != nil {
			continue
		}
		out[contracts.Priority(pri)] = d
	}
	return out
}
