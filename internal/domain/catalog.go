package domain

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Catalog is the read-only content lookup shared by ranking, trending,
// recommendations, and explore. Backed by the search index in production and
// by an in-memory fixture in tests.
type Catalog interface {
	// ItemsByID resolves content items by identifier. Unknown identifiers
	// are simply absent from the result.
	ItemsByID(ctx context.Context, ids []string) (map[string]*ContentItem, error)
	// RecentItems lists items created at or after since, newest first.
	RecentItems(ctx context.Context, since time.Time, limit int) ([]*ContentItem, error)
	// NearbyItems lists items within radiusKm of center.
	NearbyItems(ctx context.Context, center GeoPoint, radiusKm float64, limit int) ([]*ContentItem, error)
	// UpcomingEvents lists events starting within the given window.
	UpcomingEvents(ctx context.Context, within time.Duration, limit int) ([]*ContentItem, error)
	// NewOrganizations lists organizations created at or after since.
	NewOrganizations(ctx context.Context, since time.Time, limit int) ([]*ContentItem, error)
	// ItemsByTag lists items carrying the given tag.
	ItemsByTag(ctx context.Context, tag string, limit int) ([]*ContentItem, error)
	// PopularTags returns the platform-wide most used tag names.
	PopularTags(ctx context.Context, limit int) ([]string, error)
}

// DistanceKm returns the great-circle distance to other in kilometers.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLon := (other.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// MemoryCatalog is the in-memory Catalog fixture. It holds a fixed item set
// and answers every query by linear scan.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]*ContentItem
	order []string
}

// NewMemoryCatalog creates a catalog preloaded with items.
func NewMemoryCatalog(items ...*ContentItem) *MemoryCatalog {
	c := &MemoryCatalog{items: make(map[string]*ContentItem, len(items))}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

// Add inserts or replaces one item.
func (c *MemoryCatalog) Add(item *ContentItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item.ID]; !ok {
		c.order = append(c.order, item.ID)
	}
	c.items[item.ID] = item
}

// ItemsByID resolves items by identifier; unknown identifiers are absent.
func (c *MemoryCatalog) ItemsByID(_ context.Context, ids []string) (map[string]*ContentItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*ContentItem, len(ids))
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// RecentItems lists items created at or after since, newest first.
func (c *MemoryCatalog) RecentItems(_ context.Context, since time.Time, limit int) ([]*ContentItem, error) {
	matches := c.scan(func(item *ContentItem) bool {
		return !item.CreatedAt.Before(since)
	})
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return clip(matches, limit), nil
}

// NearbyItems lists located items within radiusKm of center.
func (c *MemoryCatalog) NearbyItems(_ context.Context, center GeoPoint, radiusKm float64, limit int) ([]*ContentItem, error) {
	matches := c.scan(func(item *ContentItem) bool {
		return item.Location != nil && center.DistanceKm(*item.Location) <= radiusKm
	})
	sort.Slice(matches, func(i, j int) bool {
		return center.DistanceKm(*matches[i].Location) < center.DistanceKm(*matches[j].Location)
	})
	return clip(matches, limit), nil
}

// UpcomingEvents lists events starting within the given window.
func (c *MemoryCatalog) UpcomingEvents(_ context.Context, within time.Duration, limit int) ([]*ContentItem, error) {
	now := time.Now()
	horizon := now.Add(within)
	matches := c.scan(func(item *ContentItem) bool {
		return item.Type == ContentEvent && item.EventStart != nil &&
			item.EventStart.After(now) && item.EventStart.Before(horizon)
	})
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].EventStart.Before(*matches[j].EventStart)
	})
	return clip(matches, limit), nil
}

// NewOrganizations lists organizations created at or after since.
func (c *MemoryCatalog) NewOrganizations(_ context.Context, since time.Time, limit int) ([]*ContentItem, error) {
	matches := c.scan(func(item *ContentItem) bool {
		return item.Type == ContentOrganization && !item.CreatedAt.Before(since)
	})
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return clip(matches, limit), nil
}

// ItemsByTag lists items carrying the given tag, in insertion order.
func (c *MemoryCatalog) ItemsByTag(_ context.Context, tag string, limit int) ([]*ContentItem, error) {
	matches := c.scan(func(item *ContentItem) bool {
		for _, t := range item.TagNames() {
			if t == tag {
				return true
			}
		}
		return false
	})
	return clip(matches, limit), nil
}

// PopularTags returns tag names ordered by how many items carry them.
func (c *MemoryCatalog) PopularTags(_ context.Context, limit int) ([]string, error) {
	c.mu.RLock()
	counts := make(map[string]int)
	for _, item := range c.items {
		for _, tag := range item.TagNames() {
			counts[tag]++
		}
	}
	c.mu.RUnlock()

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if limit > 0 && limit < len(tags) {
		tags = tags[:limit]
	}
	return tags, nil
}

// scan returns the items matching keep, in insertion order.
func (c *MemoryCatalog) scan(keep func(*ContentItem) bool) []*ContentItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var matches []*ContentItem
	for _, id := range c.order {
		if item := c.items[id]; keep(item) {
			matches = append(matches, item)
		}
	}
	return matches
}

func clip(items []*ContentItem, limit int) []*ContentItem {
	if limit > 0 && limit < len(items) {
		return items[:limit]
	}
	return items
}
