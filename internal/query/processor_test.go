package query_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/query"
)

const testMaxQueryLength = 500

func newProcessor(t *testing.T) *query.Processor {
	t.Helper()
	return query.NewProcessor(testMaxQueryLength, nil, logger.NewNop())
}

func TestProcessor_Process_Intent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  domain.Intent
	}{
		{"donate keyword", "donate to clean energy campaign", domain.IntentDonate},
		{"event keyword", "town hall this weekend", domain.IntentEvent},
		{"candidate keyword", "who is running for governor", domain.IntentCandidate},
		{"cause keyword", "climate action groups", domain.IntentCause},
		{"organization keyword", "teachers union committee", domain.IntentOrganization},
		{"local keyword", "things to do near me", domain.IntentLocal},
		{"no keyword", "spring gala tickets", domain.IntentGeneral},
		// Ordered rules: donate outranks cause even when both match.
		{"donate beats cause", "donate to healthcare fund", domain.IntentDonate},
	}

	p := newProcessor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Process(tt.query, domain.UserContext{})
			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}
			if q.Intent != tt.want {
				t.Errorf("Process(%q) intent = %s, want %s", tt.query, q.Intent, tt.want)
			}
		})
	}
}

func TestProcessor_Process_Entities(t *testing.T) {
	p := newProcessor(t)

	q, err := p.Process("donate to clean energy campaign", domain.UserContext{})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	want := []string{"clean energy"}
	if !reflect.DeepEqual(q.Entities, want) {
		t.Errorf("Process() entities = %v, want %v", q.Entities, want)
	}
}

func TestProcessor_Process_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"control characters stripped", "donate\x00\x01 now", "donate now"},
		{"whitespace collapsed", "  donate   now  ", "donate now"},
		{"lowercased", "DONATE NOW", "donate now"},
	}

	p := newProcessor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Process(tt.raw, domain.UserContext{})
			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}
			if q.Cleaned != tt.want {
				t.Errorf("Process(%q) cleaned = %q, want %q", tt.raw, q.Cleaned, tt.want)
			}
		})
	}
}

func TestProcessor_Process_LengthCap(t *testing.T) {
	p := newProcessor(t)

	q, err := p.Process(strings.Repeat("a", testMaxQueryLength+100), domain.UserContext{})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if len(q.Cleaned) > testMaxQueryLength {
		t.Errorf("Process() cleaned length = %d, want <= %d", len(q.Cleaned), testMaxQueryLength)
	}
}

func TestProcessor_Process_LengthCapKeepsRuneBoundary(t *testing.T) {
	// Cap of 4 bytes lands inside the second two-byte rune.
	p := query.NewProcessor(4, nil, logger.NewNop())

	q, err := p.Process("éléction", domain.UserContext{})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if !utf8.ValidString(q.Cleaned) {
		t.Errorf("Process() cleaned = %q, want valid UTF-8 after truncation", q.Cleaned)
	}
	if q.Cleaned != "él" {
		t.Errorf("Process() cleaned = %q, want %q", q.Cleaned, "él")
	}
}

func TestProcessor_Process_EmptyIsBrowse(t *testing.T) {
	p := newProcessor(t)

	for _, raw := range []string{"", "   ", "\x00\x01"} {
		q, err := p.Process(raw, domain.UserContext{})
		if err != nil {
			t.Fatalf("Process(%q) unexpected error: %v", raw, err)
		}
		if !q.IsBrowse() {
			t.Errorf("Process(%q) should be a browse request", raw)
		}
	}
}

func TestProcessor_Process_InvalidUTF8(t *testing.T) {
	p := newProcessor(t)

	_, err := p.Process("donate\xff\xfe", domain.UserContext{})
	if !errors.Is(err, query.ErrInvalidQuery) {
		t.Errorf("Process() error = %v, want ErrInvalidQuery", err)
	}
}

func TestProcessor_Process_ExpansionBroadens(t *testing.T) {
	p := newProcessor(t)

	q, err := p.Process("donate to the campaign", domain.UserContext{Region: "ohio"})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	// The cleaned query always survives expansion.
	if !strings.Contains(q.Expanded, q.Cleaned) {
		t.Errorf("Expanded %q does not contain cleaned query %q", q.Expanded, q.Cleaned)
	}
	// Synonyms broaden the expansion.
	for _, syn := range []string{"contribute", "race"} {
		if !strings.Contains(q.Expanded, syn) {
			t.Errorf("Expanded %q missing synonym %q", q.Expanded, syn)
		}
	}
	// Region qualifier included when present.
	if !strings.Contains(q.Expanded, "ohio") {
		t.Errorf("Expanded %q missing region qualifier", q.Expanded)
	}
	// Donate intent pulls in election-cycle temporal terms.
	if !strings.Contains(q.Expanded, "election") {
		t.Errorf("Expanded %q missing temporal term", q.Expanded)
	}
}

func TestProcessor_Process_Deterministic(t *testing.T) {
	p := newProcessor(t)
	user := domain.UserContext{Region: "texas"}

	first, err := p.Process("healthcare rally near me", user)
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := p.Process("healthcare rally near me", user)
		if err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
		if again.Expanded != first.Expanded ||
			again.Intent != first.Intent ||
			!reflect.DeepEqual(again.Entities, first.Entities) ||
			!reflect.DeepEqual(again.Synonyms, first.Synonyms) {
			t.Fatal("Process() not deterministic for identical input")
		}
	}
}

func TestDictionaryExtractor_OrderedByOccurrence(t *testing.T) {
	e := query.NewDictionaryExtractor([]string{"education", "clean energy", "housing"})

	got := e.Extract("housing policy and clean energy and education funding")
	want := []string{"housing", "clean energy", "education"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %v, want %v", got, want)
	}
}
