package compliance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
)

type failingProvider struct{}

func (failingProvider) RulesFor(context.Context, string) (compliance.Rules, error) {
	return compliance.Rules{}, errors.New("rule service down")
}

func newFilter(rules compliance.Rules) *compliance.Filter {
	return compliance.NewFilter(&compliance.StaticRuleProvider{Rules: rules}, logger.NewNop())
}

func approvedItem(id string) *domain.ContentItem {
	return &domain.ContentItem{
		ID:               id,
		Type:             domain.ContentOrganization,
		Title:            "Test item",
		ModerationStatus: "approved",
	}
}

func TestFilter_Evaluate_AgeRestriction(t *testing.T) {
	tests := []struct {
		name        string
		itemMinAge  int
		rulesMinAge int
		userAge     int
		wantPassed  bool
		wantWarning bool
	}{
		{name: "unrestricted", wantPassed: true},
		{name: "old enough", itemMinAge: 18, userAge: 30, wantPassed: true},
		{name: "too young", itemMinAge: 18, userAge: 16, wantPassed: false, wantWarning: true},
		{name: "unknown age passes with warning", itemMinAge: 18, wantPassed: true, wantWarning: true},
		{name: "jurisdiction raises item minimum", itemMinAge: 16, rulesMinAge: 21, userAge: 18, wantPassed: false, wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFilter(compliance.Rules{MinAge: tt.rulesMinAge})
			item := approvedItem("c1")
			item.MinAge = tt.itemMinAge

			v := f.Evaluate(context.Background(), item, domain.UserContext{Age: tt.userAge})
			if v.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (warnings %v)", v.Passed, tt.wantPassed, v.Warnings)
			}
			if tt.wantWarning && len(v.Warnings) == 0 {
				t.Error("expected a warning, got none")
			}
			if !tt.wantWarning && len(v.Warnings) != 0 {
				t.Errorf("unexpected warnings %v", v.Warnings)
			}
		})
	}
}

func TestFilter_Evaluate_GeographicEligibility(t *testing.T) {
	tests := []struct {
		name            string
		blockedRegions  []string
		eligibleRegions []string
		userRegion      string
		wantPassed      bool
	}{
		{name: "no restrictions", userRegion: "oh", wantPassed: true},
		{name: "region blocked by rules", blockedRegions: []string{"tx"}, userRegion: "tx", wantPassed: false},
		{name: "eligible region matches", eligibleRegions: []string{"oh", "pa"}, userRegion: "pa", wantPassed: true},
		{name: "region outside eligibility", eligibleRegions: []string{"oh"}, userRegion: "ca", wantPassed: false},
		{name: "unknown region passes limited content", eligibleRegions: []string{"oh"}, wantPassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFilter(compliance.Rules{BlockedRegions: tt.blockedRegions})
			item := approvedItem("c1")
			item.EligibleRegions = tt.eligibleRegions

			v := f.Evaluate(context.Background(), item, domain.UserContext{Region: tt.userRegion})
			if v.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (warnings %v)", v.Passed, tt.wantPassed, v.Warnings)
			}
		})
	}
}

func TestFilter_Evaluate_FundingDisclosure(t *testing.T) {
	f := newFilter(compliance.Rules{})

	fundraiser := approvedItem("f1")
	fundraiser.Type = domain.ContentFundraiser

	v := f.Evaluate(context.Background(), fundraiser, domain.UserContext{})
	if v.Passed {
		t.Error("fundraiser without disclosure should fail")
	}

	fundraiser.DisclosureComplete = true
	v = f.Evaluate(context.Background(), fundraiser, domain.UserContext{})
	if !v.Passed {
		t.Errorf("disclosed fundraiser should pass, warnings %v", v.Warnings)
	}

	// Disclosure only applies to fundraisers.
	org := approvedItem("c1")
	if v := f.Evaluate(context.Background(), org, domain.UserContext{}); !v.Passed {
		t.Errorf("non-fundraiser should ignore disclosure, warnings %v", v.Warnings)
	}
}

func TestFilter_Evaluate_ModerationStatus(t *testing.T) {
	f := newFilter(compliance.Rules{})

	removed := approvedItem("r1")
	removed.ModerationStatus = "removed"
	if v := f.Evaluate(context.Background(), removed, domain.UserContext{}); v.Passed {
		t.Error("removed content should fail")
	}

	pending := approvedItem("p1")
	pending.ModerationStatus = "pending"
	v := f.Evaluate(context.Background(), pending, domain.UserContext{})
	if !v.Passed {
		t.Error("pending content should pass")
	}
	if len(v.Warnings) != 1 {
		t.Errorf("pending content should carry one warning, got %v", v.Warnings)
	}
}

func TestFilter_Evaluate_ElectionBlackout(t *testing.T) {
	now := time.Now()
	rules := compliance.Rules{
		Blackouts: []compliance.BlackoutWindow{{
			Start:        now.Add(-24 * time.Hour),
			End:          now.Add(24 * time.Hour),
			ContentTypes: []domain.ContentType{domain.ContentFundraiser},
		}},
	}
	f := newFilter(rules)

	fundraiser := approvedItem("f1")
	fundraiser.Type = domain.ContentFundraiser
	fundraiser.DisclosureComplete = true
	if v := f.Evaluate(context.Background(), fundraiser, domain.UserContext{}); v.Passed {
		t.Error("fundraiser inside blackout window should fail")
	}

	// Other content types are unaffected by the window.
	org := approvedItem("c1")
	if v := f.Evaluate(context.Background(), org, domain.UserContext{}); !v.Passed {
		t.Errorf("organizations should pass during fundraiser blackout, warnings %v", v.Warnings)
	}

	// An expired window has no effect.
	expired := newFilter(compliance.Rules{
		Blackouts: []compliance.BlackoutWindow{{
			Start:        now.Add(-48 * time.Hour),
			End:          now.Add(-24 * time.Hour),
			ContentTypes: []domain.ContentType{domain.ContentFundraiser},
		}},
	})
	if v := expired.Evaluate(context.Background(), fundraiser, domain.UserContext{}); !v.Passed {
		t.Errorf("fundraiser should pass after blackout ends, warnings %v", v.Warnings)
	}
}

func TestFilter_Evaluate_CollectsAllWarnings(t *testing.T) {
	f := newFilter(compliance.Rules{})

	item := approvedItem("multi")
	item.Type = domain.ContentFundraiser // no disclosure: hard fail
	item.MinAge = 18                     // unknown requester age: soft warning
	item.ModerationStatus = "pending"    // soft warning

	v := f.Evaluate(context.Background(), item, domain.UserContext{})
	if v.Passed {
		t.Error("item with disclosure failure should not pass")
	}
	if len(v.Warnings) != 3 {
		t.Errorf("expected 3 warnings from independent checks, got %v", v.Warnings)
	}
}

func TestFilter_Evaluate_FailsClosedOnProviderError(t *testing.T) {
	f := compliance.NewFilter(failingProvider{}, logger.NewNop())

	v := f.Evaluate(context.Background(), approvedItem("c1"), domain.UserContext{})
	if v.Passed {
		t.Error("verdict should fail when rules are unavailable")
	}
	if len(v.Warnings) == 0 {
		t.Error("fail-closed verdict should explain itself")
	}
}

func TestFilter_FilterItems_PreservesOrder(t *testing.T) {
	f := newFilter(compliance.Rules{})

	removed := approvedItem("b")
	removed.ModerationStatus = "removed"
	items := []*domain.ContentItem{approvedItem("a"), removed, approvedItem("c")}

	kept, verdicts := f.FilterItems(context.Background(), items, domain.UserContext{})
	if len(kept) != 2 || kept[0].ID != "a" || kept[1].ID != "c" {
		t.Fatalf("kept = %v, want [a c]", ids(kept))
	}
	if len(verdicts) != 2 {
		t.Errorf("verdicts should cover survivors only, got %d", len(verdicts))
	}
	if _, ok := verdicts["b"]; ok {
		t.Error("dropped item should not appear in verdicts")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		verdict domain.ComplianceVerdict
		want    float64
	}{
		{name: "failed", verdict: domain.ComplianceVerdict{Passed: false}, want: 0},
		{name: "clean pass", verdict: domain.ComplianceVerdict{Passed: true}, want: 1.0},
		{name: "one warning", verdict: domain.ComplianceVerdict{Passed: true, Warnings: []string{"w"}}, want: 0.9},
		{
			name:    "warnings floor at zero",
			verdict: domain.ComplianceVerdict{Passed: true, Warnings: make([]string, 12)},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compliance.Score(tt.verdict); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func ids(items []*domain.ContentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
