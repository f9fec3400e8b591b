// Package domain holds the shared types of the discovery engine: content,
// profiles, queries, scoring results, and the response contract.
package domain

import (
	"sort"
	"time"
)

// ContentType classifies a content item.
type ContentType string

// Content types known to the discovery engine.
const (
	ContentEvent        ContentType = "event"
	ContentFundraiser   ContentType = "fundraiser"
	ContentOrganization ContentType = "organization"
	ContentPerson       ContentType = "person"
	ContentLocation     ContentType = "location"
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ContentItem is a discoverable item. Immutable once created; the discovery
// engine only reads it.
type ContentItem struct {
	ID             string      `json:"id"`
	Type           ContentType `json:"type"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Tags           []Tag       `json:"tags,omitempty"`
	Location       *GeoPoint   `json:"location,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	OrganizationID string      `json:"organization_id,omitempty"`
	// EventStart is set for event items only.
	EventStart *time.Time `json:"event_start,omitempty"`
	// OwnerVerified and EngagementCount are quality/popularity inputs
	// maintained by the owning surfaces.
	OwnerVerified   bool  `json:"owner_verified"`
	EngagementCount int64 `json:"engagement_count"`
	// ModerationStatus is one of "approved", "pending", "removed".
	ModerationStatus string `json:"moderation_status"`
	// DisclosureComplete reports whether funding-disclosure fields are filled.
	DisclosureComplete bool `json:"disclosure_complete"`
	// MinAge restricts the item to requesters at or above this age; 0 means
	// unrestricted.
	MinAge int `json:"min_age,omitempty"`
	// EligibleRegions limits visibility to the listed regions; empty means
	// visible everywhere.
	EligibleRegions []string `json:"eligible_regions,omitempty"`
}

// TagNames returns the item's tag names in declaration order.
func (c *ContentItem) TagNames() []string {
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		names = append(names, t.Name)
	}
	return names
}

// TagVector returns the item's tags as a name -> weight map, where weight is
// (importance/100) * depthDecay^depth.
func (c *ContentItem) TagVector(depthDecay float64) map[string]float64 {
	vec := make(map[string]float64, len(c.Tags))
	for _, t := range c.Tags {
		vec[t.Name] = t.Weight(depthDecay)
	}
	return vec
}

// Tag is a shared classification label, read-only to the discovery engine.
type Tag struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	// Importance ranges 0-100.
	Importance int `json:"importance"`
	// Depth is the tag's level in its category hierarchy; deeper tags carry
	// less weight.
	Depth int `json:"depth"`
}

// Weight converts importance and category depth into a [0,1] scoring weight.
func (t Tag) Weight(depthDecay float64) float64 {
	w := float64(t.Importance) / 100.0
	for i := 0; i < t.Depth; i++ {
		w *= depthDecay
	}
	return w
}

// UserProfile is a read-only snapshot from the profile subsystem.
type UserProfile struct {
	UserID string `json:"user_id"`
	// TagAffinities maps tag name -> affinity weight.
	TagAffinities map[string]float64 `json:"tag_affinities,omitempty"`
	Location      *GeoPoint          `json:"location,omitempty"`
	Region        string             `json:"region,omitempty"`
	Age           int                `json:"age,omitempty"`
	// IssuePriorities is the user's ordered political-issue priorities.
	IssuePriorities []string `json:"issue_priorities,omitempty"`
	PrivacyLevel    string   `json:"privacy_level,omitempty"`
}

// TopAffinityTags returns the n tag names with the highest affinity,
// descending, ties broken by name for determinism.
func (p *UserProfile) TopAffinityTags(n int) []string {
	type entry struct {
		name     string
		affinity float64
	}
	entries := make([]entry, 0, len(p.TagAffinities))
	for name, aff := range p.TagAffinities {
		entries = append(entries, entry{name, aff})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].affinity != entries[j].affinity {
			return entries[i].affinity > entries[j].affinity
		}
		return entries[i].name < entries[j].name
	})
	if n > len(entries) {
		n = len(entries)
	}
	names := make([]string, 0, n)
	for _, e := range entries[:n] {
		names = append(names, e.name)
	}
	return names
}

// UserContext carries the requesting user's situation through a discovery
// request. All fields are optional; a zero UserContext is an anonymous
// browse.
type UserContext struct {
	UserID   string    `json:"user_id,omitempty"`
	Region   string    `json:"region,omitempty"`
	Age      int       `json:"age,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
	Profile  *UserProfile
}

// Interaction is a single engagement event ingested for trending analysis.
type Interaction struct {
	ContentID string    `json:"content_id"`
	UserID    string    `json:"user_id,omitempty"`
	Kind      string    `json:"kind"` // view, share, mention, donate, cross_surface
	Surface   string    `json:"surface,omitempty"`
	At        time.Time `json:"at"`
}
