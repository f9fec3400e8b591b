// Package explore assembles the browse surface: curated sections for
// users who arrive without a query.
package explore

import (
	"context"
	"fmt"
	"time"

	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/trending"
)

// Section identifiers, in presentation order.
const (
	SectionTrending = "trending"
	SectionLocal    = "local"
	SectionCauses   = "causes"
	SectionUpcoming = "upcoming"
	SectionNewOrgs  = "new_organizations"
	SectionSeasonal = "seasonal"
)

// Section is one curated shelf of the explore page.
type Section struct {
	ID    string                  `json:"id"`
	Title string                  `json:"title"`
	Items []domain.ContentSummary `json:"items"`
}

// Response is the assembled explore page. Sections with nothing to show
// are omitted entirely.
type Response struct {
	Sections []Section `json:"sections"`
	TookMs   int64     `json:"took_ms"`
}

// Curator builds the explore page from the catalog, the trending
// leaderboard, and the user's profile. Every section passes through the
// compliance filter before presentation.
type Curator struct {
	cfg     config.ExploreConfig
	catalog domain.Catalog
	records trending.RecordStore
	filter  *compliance.Filter
	log     logger.Logger
	now     func() time.Time
}

// NewCurator creates an explore curator.
func NewCurator(cfg config.ExploreConfig, catalog domain.Catalog, records trending.RecordStore, filter *compliance.Filter, log logger.Logger) *Curator {
	return &Curator{
		cfg:     cfg,
		catalog: catalog,
		records: records,
		filter:  filter,
		log:     log,
		now:     time.Now,
	}
}

type sectionBuilder struct {
	id    string
	title string
	build func(ctx context.Context, user domain.UserContext) ([]*domain.ContentItem, map[string]float64, error)
}

// Explore assembles the page. A failing section is logged and omitted;
// the page is built from whatever sections succeeded.
func (c *Curator) Explore(ctx context.Context, user domain.UserContext) *Response {
	start := c.now()
	builders := []sectionBuilder{
		{SectionTrending, "Trending now", c.trendingItems},
		{SectionLocal, "Near you", c.localItems},
		{SectionCauses, "For your causes", c.causeItems},
		{SectionUpcoming, "Upcoming events", c.upcomingItems},
		{SectionNewOrgs, "New organizations", c.newOrgItems},
		{SectionSeasonal, "In season", c.seasonalItems},
	}

	resp := &Response{}
	for _, b := range builders {
		items, scores, err := b.build(ctx, user)
		if err != nil {
			c.log.Warn("explore section failed",
				logger.String("section", b.id),
				logger.Error(err))
			continue
		}
		section := c.assemble(ctx, b, items, scores, user)
		if len(section.Items) > 0 {
			resp.Sections = append(resp.Sections, section)
		}
	}
	resp.TookMs = time.Since(start).Milliseconds()
	return resp
}

// assemble filters a section's items for compliance and trims to size.
func (c *Curator) assemble(ctx context.Context, b sectionBuilder, items []*domain.ContentItem, scores map[string]float64, user domain.UserContext) Section {
	passed, verdicts := c.filter.FilterItems(ctx, items, user)

	section := Section{ID: b.id, Title: b.title}
	for _, item := range passed {
		if len(section.Items) >= c.cfg.SectionSize {
			break
		}
		summary := domain.ContentSummary{
			ID:       item.ID,
			Type:     item.Type,
			Title:    item.Title,
			Combined: scores[item.ID],
			Warnings: verdicts[item.ID].Warnings,
		}
		section.Items = append(section.Items, summary)
	}
	return section
}

func (c *Curator) trendingItems(ctx context.Context, _ domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	records, err := c.records.Top(ctx, c.cfg.SectionSize*2)
	if err != nil {
		return nil, nil, fmt.Errorf("trending records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(records))
	scores := make(map[string]float64, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ContentID)
		scores[rec.ContentID] = rec.Score
	}
	byID, err := c.catalog.ItemsByID(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve trending items: %w", err)
	}

	// Preserve leaderboard order.
	items := make([]*domain.ContentItem, 0, len(records))
	for _, rec := range records {
		if item, ok := byID[rec.ContentID]; ok {
			items = append(items, item)
		}
	}
	return items, scores, nil
}

func (c *Curator) localItems(ctx context.Context, user domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	loc := user.Location
	if loc == nil && user.Profile != nil {
		loc = user.Profile.Location
	}
	if loc == nil {
		// No location, no section.
		return nil, nil, nil
	}
	items, err := c.catalog.NearbyItems(ctx, *loc, c.cfg.LocalRadius, c.cfg.SectionSize*2)
	if err != nil {
		return nil, nil, fmt.Errorf("nearby items: %w", err)
	}
	return items, nil, nil
}

// causeItems builds the cause section from the user's strongest tag
// affinities, falling back to platform-wide popular tags for anonymous or
// new users.
func (c *Curator) causeItems(ctx context.Context, user domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	var tags []string
	if user.Profile != nil {
		tags = user.Profile.TopAffinityTags(c.cfg.TopTags)
	}
	if len(tags) == 0 {
		var err error
		tags, err = c.catalog.PopularTags(ctx, c.cfg.TopTags)
		if err != nil {
			return nil, nil, fmt.Errorf("popular tags: %w", err)
		}
	}
	return c.itemsForTags(ctx, tags, c.cfg.ItemsPerTag)
}

func (c *Curator) upcomingItems(ctx context.Context, _ domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	within := time.Duration(c.cfg.UpcomingDays) * 24 * time.Hour
	items, err := c.catalog.UpcomingEvents(ctx, within, c.cfg.SectionSize*2)
	if err != nil {
		return nil, nil, fmt.Errorf("upcoming events: %w", err)
	}
	return items, nil, nil
}

func (c *Curator) newOrgItems(ctx context.Context, _ domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	since := c.now().AddDate(0, 0, -c.cfg.NewOrgDays)
	items, err := c.catalog.NewOrganizations(ctx, since, c.cfg.SectionSize*2)
	if err != nil {
		return nil, nil, fmt.Errorf("new organizations: %w", err)
	}
	return items, nil, nil
}

func (c *Curator) seasonalItems(ctx context.Context, _ domain.UserContext) ([]*domain.ContentItem, map[string]float64, error) {
	tags := c.cfg.SeasonalTags[int(c.now().Month())]
	if len(tags) == 0 {
		return nil, nil, nil
	}
	return c.itemsForTags(ctx, tags, c.cfg.ItemsPerTag)
}

func (c *Curator) itemsForTags(ctx context.Context, tags []string, perTag int) ([]*domain.ContentItem, map[string]float64, error) {
	var items []*domain.ContentItem
	seen := make(map[string]bool)
	for _, tag := range tags {
		tagged, err := c.catalog.ItemsByTag(ctx, tag, perTag)
		if err != nil {
			return nil, nil, fmt.Errorf("items by tag %q: %w", tag, err)
		}
		for _, item := range tagged {
			if !seen[item.ID] {
				seen[item.ID] = true
				items = append(items, item)
			}
		}
	}
	return items, nil, nil
}
