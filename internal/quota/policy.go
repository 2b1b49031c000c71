// Package quota maps plan tiers to their daily interaction allowance.
package quota

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"chatgate/internal/domain"
)

// DefaultLimits are the tiers the bot shipped with.
var DefaultLimits = map[domain.Plan]int{
	domain.PlanPro: 20,
	domain.PlanMax: 50,
}

// Policy is an immutable plan -> allowance table.
type Policy struct {
	limits map[domain.Plan]int
}

type planFile struct {
	Plans map[string]int `yaml:"plans"`
}

// NewPolicy validates limits and returns a Policy holding its own copy.
func NewPolicy(limits map[domain.Plan]int) (*Policy, error) {
	if len(limits) == 0 {
		return nil, errors.New("quota: at least one plan is required")
	}
	copied := make(map[domain.Plan]int, len(limits))
	for plan, allowance := range limits {
		name := domain.NormalizePlan(string(plan))
		if name == "" {
			return nil, errors.New("quota: empty plan name")
		}
		if allowance <= 0 {
			return nil, fmt.Errorf("quota: plan %q allowance must be > 0, got %d", name, allowance)
		}
		copied[name] = allowance
	}
	return &Policy{limits: copied}, nil
}

// LoadPolicy builds the policy from an optional YAML file and an optional
// inline "plan=limit,plan=limit" override. Inline entries win over the
// file; with neither, DefaultLimits apply.
func LoadPolicy(path, inline string) (*Policy, error) {
	limits := map[domain.Plan]int{}
	path = strings.TrimSpace(path)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("quota: read plans file: %w", err)
		}
		var pf planFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("quota: decode plans file: %w", err)
		}
		for name, allowance := range pf.Plans {
			limits[domain.NormalizePlan(name)] = allowance
		}
	}
	parsed, err := ParseLimits(inline)
	if err != nil {
		return nil, err
	}
	for plan, allowance := range parsed {
		limits[plan] = allowance
	}
	if len(limits) == 0 {
		return NewPolicy(DefaultLimits)
	}
	return NewPolicy(limits)
}

// ParseLimits parses "pro=20,max=50". An empty string yields an empty map.
func ParseLimits(s string) (map[domain.Plan]int, error) {
	out := map[domain.Plan]int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("quota: malformed plan limit %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("quota: plan %q: %w", name, err)
		}
		out[domain.NormalizePlan(name)] = n
	}
	return out, nil
}

// Allowance returns the daily allowance for plan. Unknown plans are a
// configuration error and are never defaulted.
func (p *Policy) Allowance(plan domain.Plan) (int, error) {
	allowance, ok := p.limits[plan]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, plan)
	}
	return allowance, nil
}

// Plans lists the configured tiers in name order.
func (p *Policy) Plans() []domain.Plan {
	plans := make([]domain.Plan, 0, len(p.limits))
	for plan := range p.limits {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i] < plans[j] })
	return plans
}
