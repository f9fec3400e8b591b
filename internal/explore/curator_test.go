package explore_test

import (
	"context"
	"testing"
	"time"

	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/explore"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/trending"
)

func newCurator(cfg config.ExploreConfig, catalog domain.Catalog, records trending.RecordStore) *explore.Curator {
	filter := compliance.NewFilter(&compliance.StaticRuleProvider{}, logger.NewNop())
	return explore.NewCurator(cfg, catalog, records, filter, logger.NewNop())
}

func exploreConfig() config.ExploreConfig {
	cfg := config.Default().Explore
	cfg.SeasonalTags = nil // opt in per test
	return cfg
}

func approvedItem(id string, tags ...string) *domain.ContentItem {
	item := &domain.ContentItem{
		ID:               id,
		Type:             domain.ContentOrganization,
		Title:            "Item " + id,
		CreatedAt:        time.Now().Add(-time.Hour),
		ModerationStatus: "approved",
	}
	for _, tag := range tags {
		item.Tags = append(item.Tags, domain.Tag{Name: tag})
	}
	return item
}

func findSection(resp *explore.Response, id string) (explore.Section, bool) {
	for _, s := range resp.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return explore.Section{}, false
}

func TestCurator_Explore_OmitsEmptySections(t *testing.T) {
	c := newCurator(exploreConfig(), domain.NewMemoryCatalog(), trending.NewMemoryRecordStore())

	resp := c.Explore(context.Background(), domain.UserContext{})
	if len(resp.Sections) != 0 {
		t.Errorf("Sections = %v, want none when every source is empty", resp.Sections)
	}
}

func TestCurator_Explore_TrendingFollowsLeaderboard(t *testing.T) {
	ctx := context.Background()
	records := trending.NewMemoryRecordStore()
	now := time.Now()
	for _, rec := range []domain.TrendingRecord{
		{ContentID: "second", Score: 0.7, ComputedAt: now},
		{ContentID: "first", Score: 0.9, ComputedAt: now},
	} {
		if err := records.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	catalog := domain.NewMemoryCatalog(approvedItem("first"), approvedItem("second"))

	c := newCurator(exploreConfig(), catalog, records)
	resp := c.Explore(ctx, domain.UserContext{})

	section, ok := findSection(resp, explore.SectionTrending)
	if !ok {
		t.Fatal("trending section missing")
	}
	if len(section.Items) != 2 || section.Items[0].ID != "first" || section.Items[1].ID != "second" {
		t.Errorf("trending items = %v, want leaderboard order [first second]", section.Items)
	}
	if section.Items[0].Combined != 0.9 {
		t.Errorf("Combined = %v, want the trending score 0.9", section.Items[0].Combined)
	}
}

func TestCurator_Explore_LocalRequiresLocation(t *testing.T) {
	ctx := context.Background()
	nearby := approvedItem("nearby")
	nearby.Location = &domain.GeoPoint{Lat: 39.97, Lon: -83.01}
	c := newCurator(exploreConfig(), domain.NewMemoryCatalog(nearby), trending.NewMemoryRecordStore())

	resp := c.Explore(ctx, domain.UserContext{})
	if _, ok := findSection(resp, explore.SectionLocal); ok {
		t.Error("local section should be omitted without a location")
	}

	resp = c.Explore(ctx, domain.UserContext{Location: &domain.GeoPoint{Lat: 39.96, Lon: -83.0}})
	section, ok := findSection(resp, explore.SectionLocal)
	if !ok {
		t.Fatal("local section missing for a located user")
	}
	if len(section.Items) != 1 || section.Items[0].ID != "nearby" {
		t.Errorf("local items = %v, want [nearby]", section.Items)
	}
}

func TestCurator_Explore_CausesFallBackToPopularTags(t *testing.T) {
	catalog := domain.NewMemoryCatalog(
		approvedItem("h1", "housing"),
		approvedItem("h2", "housing"),
	)
	c := newCurator(exploreConfig(), catalog, trending.NewMemoryRecordStore())

	// Anonymous browse still gets a cause section from platform-wide tags.
	resp := c.Explore(context.Background(), domain.UserContext{})
	section, ok := findSection(resp, explore.SectionCauses)
	if !ok {
		t.Fatal("causes section missing for anonymous browse")
	}
	if len(section.Items) != 2 {
		t.Errorf("causes items = %v, want both housing items", section.Items)
	}
}

func TestCurator_Explore_CausesUseProfileAffinities(t *testing.T) {
	catalog := domain.NewMemoryCatalog(
		approvedItem("h1", "housing"),
		approvedItem("p1", "parks"),
		approvedItem("p2", "parks"),
	)
	cfg := exploreConfig()
	cfg.TopTags = 1
	c := newCurator(cfg, catalog, trending.NewMemoryRecordStore())

	user := domain.UserContext{
		UserID:  "u1",
		Profile: &domain.UserProfile{TagAffinities: map[string]float64{"housing": 0.9, "parks": 0.1}},
	}
	resp := c.Explore(context.Background(), user)

	section, ok := findSection(resp, explore.SectionCauses)
	if !ok {
		t.Fatal("causes section missing")
	}
	if len(section.Items) != 1 || section.Items[0].ID != "h1" {
		t.Errorf("causes items = %v, want the strongest affinity's item only", section.Items)
	}
}

func TestCurator_Explore_UpcomingEventsWindow(t *testing.T) {
	soon := time.Now().Add(3 * 24 * time.Hour)
	distant := time.Now().Add(60 * 24 * time.Hour)

	eventSoon := approvedItem("soon")
	eventSoon.Type = domain.ContentEvent
	eventSoon.EventStart = &soon
	eventLater := approvedItem("later")
	eventLater.Type = domain.ContentEvent
	eventLater.EventStart = &distant

	c := newCurator(exploreConfig(), domain.NewMemoryCatalog(eventSoon, eventLater), trending.NewMemoryRecordStore())
	resp := c.Explore(context.Background(), domain.UserContext{})

	section, ok := findSection(resp, explore.SectionUpcoming)
	if !ok {
		t.Fatal("upcoming section missing")
	}
	if len(section.Items) != 1 || section.Items[0].ID != "soon" {
		t.Errorf("upcoming items = %v, want events inside the window only", section.Items)
	}
}

func TestCurator_Explore_NewOrganizationsWindow(t *testing.T) {
	fresh := approvedItem("fresh")
	fresh.CreatedAt = time.Now().AddDate(0, 0, -10)
	old := approvedItem("old")
	old.CreatedAt = time.Now().AddDate(0, 0, -90)

	c := newCurator(exploreConfig(), domain.NewMemoryCatalog(fresh, old), trending.NewMemoryRecordStore())
	resp := c.Explore(context.Background(), domain.UserContext{})

	section, ok := findSection(resp, explore.SectionNewOrgs)
	if !ok {
		t.Fatal("new organizations section missing")
	}
	if len(section.Items) != 1 || section.Items[0].ID != "fresh" {
		t.Errorf("new org items = %v, want recently created only", section.Items)
	}
}

func TestCurator_Explore_SeasonalTagsForCurrentMonth(t *testing.T) {
	cfg := exploreConfig()
	cfg.SeasonalTags = map[int][]string{
		int(time.Now().Month()): {"voting"},
	}
	catalog := domain.NewMemoryCatalog(approvedItem("v1", "voting"), approvedItem("x1", "parks"))
	c := newCurator(cfg, catalog, trending.NewMemoryRecordStore())

	resp := c.Explore(context.Background(), domain.UserContext{})
	section, ok := findSection(resp, explore.SectionSeasonal)
	if !ok {
		t.Fatal("seasonal section missing")
	}
	if len(section.Items) != 1 || section.Items[0].ID != "v1" {
		t.Errorf("seasonal items = %v, want tagged [v1]", section.Items)
	}
}

func TestCurator_Explore_FiltersNonCompliantItems(t *testing.T) {
	ctx := context.Background()
	records := trending.NewMemoryRecordStore()
	if err := records.Put(ctx, domain.TrendingRecord{ContentID: "removed", Score: 0.9, ComputedAt: time.Now()}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	removed := approvedItem("removed")
	removed.ModerationStatus = "removed"

	c := newCurator(exploreConfig(), domain.NewMemoryCatalog(removed), records)

	resp := c.Explore(ctx, domain.UserContext{})
	if _, ok := findSection(resp, explore.SectionTrending); ok {
		t.Error("section of entirely non-compliant items should be omitted")
	}
}
