// Package action implements the confirmation gate between "an agent decided
// to act" and "the action ran": risk classification, the pending queue, the
// resolution ledger and the undo stack.
package action

import (
	"encoding/json"
	"net/url"
	"strings"

	"wayfinder/internal/domain"
)

// Autonomy controls how much the policy lets through without confirmation.
type Autonomy string

const (
	// AutonomyManual parks every action for confirmation.
	AutonomyManual Autonomy = "manual"
	// AutonomyAssisted auto-executes low-risk actions only.
	AutonomyAssisted Autonomy = "assisted"
	// AutonomyAutonomous also auto-executes medium-risk actions that ask for it.
	AutonomyAutonomous Autonomy = "autonomous"
)

// ToolDescriber resolves an action type to the descriptor of the tool that
// carries it out.
type ToolDescriber interface {
	Describe(name string) (domain.ToolDescriptor, bool)
}

// PolicyConfig configures a Policy.
type PolicyConfig struct {
	Autonomy      Autonomy
	KnownDomains  []string
	HighRiskTypes []string
}

// Policy classifies proposals into risk levels and decides which may run
// without confirmation.
//
// Secure by default:
//   - unknown action types are high risk
//   - navigation is medium only for known domains
//   - high risk never auto-executes, whatever the autonomy or proposal says
type Policy struct {
	autonomy  Autonomy
	known     []string
	highRisk  map[string]bool
	describer ToolDescriber
}

// NewPolicy creates a Policy. describer may be nil, in which case every
// action type is unknown and therefore high risk.
func NewPolicy(cfg PolicyConfig, describer ToolDescriber) *Policy {
	p := &Policy{
		autonomy:  cfg.Autonomy,
		highRisk:  make(map[string]bool, len(cfg.HighRiskTypes)),
		describer: describer,
	}
	if p.autonomy == "" {
		p.autonomy = AutonomyAssisted
	}
	for _, d := range cfg.KnownDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d != "" {
			p.known = append(p.known, d)
		}
	}
	for _, t := range cfg.HighRiskTypes {
		p.highRisk[t] = true
	}
	return p
}

// Autonomy returns the configured autonomy level.
func (p *Policy) Autonomy() Autonomy { return p.autonomy }

// Classify returns the risk level for a proposal. A RiskHint can raise the
// result but never lower it.
func (p *Policy) Classify(prop domain.ActionProposal) domain.RiskLevel {
	risk := p.baseRisk(prop)
	if prop.RiskHint != "" {
		risk = risk.Max(domain.ParseRiskLevel(string(prop.RiskHint)))
	}
	return risk
}

func (p *Policy) baseRisk(prop domain.ActionProposal) domain.RiskLevel {
	if p.highRisk[prop.ActionType] {
		return domain.RiskHigh
	}
	desc, ok := p.describe(prop.ActionType)
	if !ok {
		return domain.RiskHigh
	}

	switch desc.Category {
	case domain.CategoryCosmetic, domain.CategoryRead:
		return domain.RiskLow
	case domain.CategoryNavigation:
		if p.knownDestination(prop) {
			return domain.RiskMedium
		}
		return domain.RiskHigh
	default:
		// form, input, shell, filesystem, credential, remote and anything new.
		return domain.RiskHigh
	}
}

// ShouldAutoExecute reports whether an action of the given risk may run
// without confirmation.
func (p *Policy) ShouldAutoExecute(risk domain.RiskLevel, prop domain.ActionProposal) bool {
	if risk.Rank() >= domain.RiskHigh.Rank() {
		return false
	}
	switch p.autonomy {
	case AutonomyAssisted:
		return risk == domain.RiskLow
	case AutonomyAutonomous:
		return risk == domain.RiskLow || (risk == domain.RiskMedium && prop.AutoExecute)
	default:
		return false
	}
}

// Reversible reports whether the tool behind actionType declares an inverse.
func (p *Policy) Reversible(actionType string) bool {
	desc, ok := p.describe(actionType)
	return ok && desc.Reversible
}

func (p *Policy) describe(actionType string) (domain.ToolDescriptor, bool) {
	if p.describer == nil || actionType == "" {
		return domain.ToolDescriptor{}, false
	}
	return p.describer.Describe(actionType)
}

func (p *Policy) isKnownHost(host string) bool {
	if host == "" {
		return false
	}
	for _, d := range p.known {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// knownDestination reports whether a navigation goes to a known domain.
// Both the target and the "url" argument the tool will run are checked;
// each present one must be known and they must name the same host.
func (p *Policy) knownDestination(prop domain.ActionProposal) bool {
	target := hostOf(prop.Target)
	arg := hostOf(URLArgument(prop.Arguments))
	switch {
	case target == "" && arg == "":
		return false
	case target != "" && arg != "" && target != arg:
		return false
	case target != "" && !p.isKnownHost(target):
		return false
	case arg != "" && !p.isKnownHost(arg):
		return false
	}
	return true
}

// URLArgument returns the "url" member of a tool argument object, if any.
func URLArgument(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var v struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(args, &v) != nil {
		return ""
	}
	return v.URL
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
