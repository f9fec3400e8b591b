// Package compliance implements the terminal gate every discovery surface
// routes through. Each rule is an independent, named predicate; predicates
// are combined by AND, and every failing predicate contributes its warning
// to the verdict so borderline-but-passing items can surface soft warnings.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
)

// BlackoutWindow is an election-law publication blackout. Content of the
// listed types is non-compliant inside the window.
type BlackoutWindow struct {
	Start        time.Time            `json:"start"`
	End          time.Time            `json:"end"`
	ContentTypes []domain.ContentType `json:"content_types"`
}

// Contains reports whether t falls inside the window.
func (w BlackoutWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Rules is the jurisdiction rule data consumed by the filter. Rule substance
// is owned by the compliance-rule collaborator; only this shape matters
// here.
type Rules struct {
	MinAge         int              `json:"min_age"`
	BlockedRegions []string         `json:"blocked_regions"`
	Blackouts      []BlackoutWindow `json:"blackouts"`
}

// RuleProvider supplies rule data for a region.
type RuleProvider interface {
	RulesFor(ctx context.Context, region string) (Rules, error)
}

// StaticRuleProvider serves one fixed rule set regardless of region. Used as
// the default provider and in tests.
type StaticRuleProvider struct {
	Rules Rules
}

// RulesFor returns the static rule set.
func (p *StaticRuleProvider) RulesFor(_ context.Context, _ string) (Rules, error) {
	return p.Rules, nil
}

// check is a single named compliance predicate. It returns ok plus a warning
// string when the predicate fails.
type check func(item *domain.ContentItem, user domain.UserContext, rules Rules, now time.Time) (ok bool, warning string)

// Filter evaluates compliance verdicts per (item, user context) pair.
// Stateless apart from its rule provider.
type Filter struct {
	provider RuleProvider
	checks   []check
	logger   logger.Logger
	now      func() time.Time
}

// NewFilter creates a compliance filter with the standard check set.
func NewFilter(provider RuleProvider, log logger.Logger) *Filter {
	return &Filter{
		provider: provider,
		checks: []check{
			checkAgeRestriction,
			checkGeographicEligibility,
			checkFundingDisclosure,
			checkModerationStatus,
			checkElectionBlackout,
		},
		logger: log,
		now:    time.Now,
	}
}

// Evaluate runs every check against one item. All checks run even after a
// failure so the verdict carries every warning.
func (f *Filter) Evaluate(ctx context.Context, item *domain.ContentItem, user domain.UserContext) domain.ComplianceVerdict {
	rules, err := f.provider.RulesFor(ctx, user.Region)
	if err != nil {
		// Fail closed: without rule data nothing is compliant.
		f.logger.Warn("compliance rules unavailable, failing closed",
			logger.String("region", user.Region),
			logger.Error(err),
		)
		return domain.ComplianceVerdict{
			Passed:   false,
			Warnings: []string{"compliance rules unavailable"},
		}
	}

	now := f.now()
	verdict := domain.ComplianceVerdict{Passed: true}
	for _, c := range f.checks {
		ok, warning := c(item, user, rules, now)
		if warning != "" {
			verdict.Warnings = append(verdict.Warnings, warning)
		}
		if !ok {
			verdict.Passed = false
		}
	}
	return verdict
}

// FilterItems drops non-compliant items and returns the survivors with their
// verdicts, preserving input order. This is the single mandatory gate before
// any response leaves the engine.
func (f *Filter) FilterItems(ctx context.Context, items []*domain.ContentItem, user domain.UserContext) ([]*domain.ContentItem, map[string]domain.ComplianceVerdict) {
	kept := make([]*domain.ContentItem, 0, len(items))
	verdicts := make(map[string]domain.ComplianceVerdict, len(items))
	for _, item := range items {
		v := f.Evaluate(ctx, item, user)
		if !v.Passed {
			continue
		}
		verdicts[item.ID] = v
		kept = append(kept, item)
	}
	return kept, verdicts
}

// Score maps a verdict onto the [0,1] compliance signal used by trending:
// failing items score 0, passing items lose a small amount per soft warning.
func Score(v domain.ComplianceVerdict) float64 {
	if !v.Passed {
		return 0
	}
	s := 1.0 - 0.1*float64(len(v.Warnings))
	if s < 0 {
		return 0
	}
	return s
}

func checkAgeRestriction(item *domain.ContentItem, user domain.UserContext, rules Rules, _ time.Time) (bool, string) {
	minAge := item.MinAge
	if rules.MinAge > minAge {
		minAge = rules.MinAge
	}
	if minAge == 0 {
		return true, ""
	}
	if user.Age == 0 {
		// Unknown age on restricted content is a soft warning, not a drop.
		return true, fmt.Sprintf("age-restricted content (%d+), requester age unknown", minAge)
	}
	if user.Age < minAge {
		return false, fmt.Sprintf("requester below minimum age %d", minAge)
	}
	return true, ""
}

func checkGeographicEligibility(item *domain.ContentItem, user domain.UserContext, rules Rules, _ time.Time) (bool, string) {
	for _, blocked := range rules.BlockedRegions {
		if user.Region != "" && user.Region == blocked {
			return false, fmt.Sprintf("region %s is blocked by jurisdiction rules", blocked)
		}
	}
	if len(item.EligibleRegions) == 0 {
		return true, ""
	}
	if user.Region == "" {
		return true, "region-limited content, requester region unknown"
	}
	for _, region := range item.EligibleRegions {
		if region == user.Region {
			return true, ""
		}
	}
	return false, fmt.Sprintf("content not eligible in region %s", user.Region)
}

func checkFundingDisclosure(item *domain.ContentItem, _ domain.UserContext, _ Rules, _ time.Time) (bool, string) {
	if item.Type != domain.ContentFundraiser {
		return true, ""
	}
	if !item.DisclosureComplete {
		return false, "funding disclosure incomplete"
	}
	return true, ""
}

func checkModerationStatus(item *domain.ContentItem, _ domain.UserContext, _ Rules, _ time.Time) (bool, string) {
	switch item.ModerationStatus {
	case "removed":
		return false, "content removed by moderation"
	case "pending":
		return true, "moderation review pending"
	default:
		return true, ""
	}
}

func checkElectionBlackout(item *domain.ContentItem, _ domain.UserContext, rules Rules, now time.Time) (bool, string) {
	for _, w := range rules.Blackouts {
		if !w.Contains(now) {
			continue
		}
		for _, t := range w.ContentTypes {
			if t == item.Type {
				return false, "election-law blackout in effect"
			}
		}
	}
	return true, ""
}
