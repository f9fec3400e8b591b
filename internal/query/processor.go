// Package query normalizes and expands raw queries into structured queries.
// Intent classification and entity extraction run over Aho-Corasick keyword
// automatons so a query is scanned once regardless of dictionary size.
package query

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
)

// ErrInvalidQuery is returned for a malformed (non-text) query payload.
// An empty query is NOT invalid: it is a browse request.
var ErrInvalidQuery = errors.New("query is not valid text")

// EntityExtractor extracts named entities from cleaned query text, in order
// of appearance. Implementations must be deterministic.
type EntityExtractor interface {
	Extract(text string) []string
}

// intentRule is one ordered keyword rule. The first rule with any keyword
// present in the query wins.
type intentRule struct {
	intent   domain.Intent
	keywords []string
}

// defaultIntentRules is the ordered rule list. Order matters: a query
// mentioning both donating and an event classifies as DONATE.
func defaultIntentRules() []intentRule {
	return []intentRule{
		{domain.IntentDonate, []string{"donate", "donation", "contribute", "give money", "fundraise", "chip in"}},
		{domain.IntentEvent, []string{"event", "rally", "town hall", "canvass", "phone bank", "volunteer", "meetup"}},
		{domain.IntentCandidate, []string{"candidate", "senator", "governor", "representative", "mayor", "elect", "running for"}},
		{domain.IntentCause, []string{"cause", "issue", "climate", "healthcare", "education", "immigration", "housing"}},
		{domain.IntentOrganization, []string{"organization", "nonprofit", "committee", "pac", "coalition", "union"}},
		{domain.IntentLocal, []string{"near me", "local", "nearby", "in my area", "my district"}},
	}
}

// defaultSynonyms is the political-domain synonym table used for expansion.
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"donate":     {"contribute", "support", "fund"},
		"donation":   {"contribution", "gift"},
		"campaign":   {"race", "candidacy"},
		"candidate":  {"nominee", "contender"},
		"election":   {"ballot", "vote"},
		"rally":      {"demonstration", "march"},
		"volunteer":  {"canvass", "organize"},
		"climate":    {"environment", "clean energy"},
		"healthcare": {"health care", "medical access"},
	}
}

// temporalTerms broaden queries during election and campaign cycles.
// Applied when the intent concerns candidates, events, or donations.
func temporalTerms(intent domain.Intent) []string {
	switch intent {
	case domain.IntentDonate, domain.IntentEvent, domain.IntentCandidate:
		return []string{"election", "campaign", "upcoming"}
	default:
		return nil
	}
}

// Processor turns raw query strings into ProcessedQuery values. Safe for
// concurrent use; all state is built at construction and read-only after.
type Processor struct {
	maxLength     int
	rules         []intentRule
	intentMatcher *ahocorasick.Matcher
	intentKeys    []string
	synonyms      map[string][]string
	extractor     EntityExtractor
	logger        logger.Logger
	now           func() time.Time
}

// NewProcessor creates a query processor with the default political-domain
// dictionaries. A nil extractor falls back to the built-in dictionary
// extractor.
func NewProcessor(maxLength int, extractor EntityExtractor, log logger.Logger) *Processor {
	rules := defaultIntentRules()

	keys := make([]string, 0, 64)
	for _, r := range rules {
		keys = append(keys, r.keywords...)
	}

	if extractor == nil {
		extractor = NewDictionaryExtractor(nil)
	}

	return &Processor{
		maxLength:     maxLength,
		rules:         rules,
		intentMatcher: ahocorasick.NewStringMatcher(keys),
		intentKeys:    keys,
		synonyms:      defaultSynonyms(),
		extractor:     extractor,
		logger:        log,
		now:           time.Now,
	}
}

// Process sanitizes, expands, and classifies a raw query. Deterministic for
// identical input and context. An empty query yields a browse request
// (IsBrowse() true), never an error.
func (p *Processor) Process(raw string, user domain.UserContext) (*domain.ProcessedQuery, error) {
	if !utf8.ValidString(raw) {
		return nil, ErrInvalidQuery
	}

	cleaned := p.sanitize(raw)
	q := &domain.ProcessedQuery{
		Original:  raw,
		Cleaned:   cleaned,
		Intent:    domain.IntentGeneral,
		StartedAt: p.now(),
	}
	if cleaned == "" {
		return q, nil
	}

	q.Intent = p.classifyIntent(cleaned)
	q.Synonyms = p.collectSynonyms(cleaned)
	q.Expanded = p.expand(q, user)
	q.Entities = p.extractor.Extract(cleaned)

	p.logger.Debug("query processed",
		logger.String("intent", string(q.Intent)),
		logger.Strings("entities", q.Entities),
		logger.Int("synonyms", len(q.Synonyms)),
	)
	return q, nil
}

// sanitize strips control characters, collapses whitespace, lowercases, and
// caps length.
func (p *Processor) sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if p.maxLength > 0 && len(cleaned) > p.maxLength {
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		cut := p.maxLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = strings.TrimSpace(cleaned[:cut])
	}
	return cleaned
}

// classifyIntent returns the first-matching rule's intent, GENERAL when no
// rule matches. One automaton pass finds every keyword hit; rule order then
// decides.
func (p *Processor) classifyIntent(cleaned string) domain.Intent {
	hits := p.intentMatcher.Match([]byte(cleaned))
	if len(hits) == 0 {
		return domain.IntentGeneral
	}

	matched := make(map[string]bool, len(hits))
	for _, hit := range hits {
		if hit < len(p.intentKeys) {
			matched[p.intentKeys[hit]] = true
		}
	}

	for _, rule := range p.rules {
		for _, kw := range rule.keywords {
			if matched[kw] {
				return rule.intent
			}
		}
	}
	return domain.IntentGeneral
}

// collectSynonyms gathers the synonym set for every term present in the
// cleaned query, sorted for determinism.
func (p *Processor) collectSynonyms(cleaned string) []string {
	seen := make(map[string]struct{})
	for _, term := range strings.Fields(cleaned) {
		for _, syn := range p.synonyms[term] {
			seen[syn] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for syn := range seen {
		out = append(out, syn)
	}
	sort.Strings(out)
	return out
}

// expand joins the cleaned text with synonyms, a location qualifier, and
// temporal terms as one disjunction. Expansion only broadens matches: the
// original terms always remain in the expansion.
func (p *Processor) expand(q *domain.ProcessedQuery, user domain.UserContext) string {
	parts := []string{q.Cleaned}
	parts = append(parts, q.Synonyms...)
	if user.Region != "" {
		parts = append(parts, strings.ToLower(user.Region))
	}
	parts = append(parts, temporalTerms(q.Intent)...)
	return strings.Join(parts, " ")
}

// DictionaryExtractor extracts entities by matching a fixed phrase
// dictionary, ordered by first occurrence in the text.
type DictionaryExtractor struct {
	matcher *ahocorasick.Matcher
	phrases []string
}

// defaultEntities is the built-in political-issue and entity phrase
// dictionary.
func defaultEntities() []string {
	return []string{
		"clean energy", "climate change", "health care", "healthcare",
		"education", "immigration", "housing", "gun safety",
		"voting rights", "reproductive rights", "minimum wage",
		"criminal justice", "infrastructure", "veterans",
	}
}

// NewDictionaryExtractor creates an extractor over the given phrases, or the
// default dictionary when phrases is nil.
func NewDictionaryExtractor(phrases []string) *DictionaryExtractor {
	if phrases == nil {
		phrases = defaultEntities()
	}
	return &DictionaryExtractor{
		matcher: ahocorasick.NewStringMatcher(phrases),
		phrases: phrases,
	}
}

// Extract returns the dictionary phrases present in text, ordered by first
// occurrence.
func (e *DictionaryExtractor) Extract(text string) []string {
	hits := e.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return nil
	}

	found := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit < len(e.phrases) {
			found = append(found, e.phrases[hit])
		}
	}
	sort.Slice(found, func(i, j int) bool {
		pi, pj := strings.Index(text, found[i]), strings.Index(text, found[j])
		if pi != pj {
			return pi < pj
		}
		return found[i] < found[j]
	})
	return found
}
