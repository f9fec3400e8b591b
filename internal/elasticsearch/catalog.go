package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
)

// Catalog implements domain.Catalog against the content index.
type Catalog struct {
	client *Client
	config *config.ElasticsearchConfig
}

// NewCatalog creates an index-backed content catalog.
func NewCatalog(client *Client, cfg *config.ElasticsearchConfig) *Catalog {
	return &Catalog{client: client, config: cfg}
}

// ItemsByID resolves content items by identifier.
func (c *Catalog) ItemsByID(ctx context.Context, ids []string) (map[string]*domain.ContentItem, error) {
	if len(ids) == 0 {
		return map[string]*domain.ContentItem{}, nil
	}
	query := map[string]any{
		"size": len(ids),
		"query": map[string]any{
			"ids": map[string]any{"values": ids},
		},
	}
	items, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID, nil
}

// RecentItems lists items created at or after since, newest first.
func (c *Catalog) RecentItems(ctx context.Context, since time.Time, limit int) ([]*domain.ContentItem, error) {
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"range": map[string]any{
				"created_at": map[string]any{"gte": formatTime(since)},
			},
		},
		"sort": []any{
			map[string]any{"created_at": map[string]any{"order": "desc"}},
		},
	}
	return c.search(ctx, query)
}

// NearbyItems lists items within radiusKm of center.
func (c *Catalog) NearbyItems(ctx context.Context, center domain.GeoPoint, radiusKm float64, limit int) ([]*domain.ContentItem, error) {
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{
						"geo_distance": map[string]any{
							"distance": fmt.Sprintf("%.0fkm", radiusKm),
							"location": map[string]any{"lat": center.Lat, "lon": center.Lon},
						},
					},
				},
			},
		},
		"sort": []any{
			map[string]any{
				"_geo_distance": map[string]any{
					"location": map[string]any{"lat": center.Lat, "lon": center.Lon},
					"order":    "asc",
					"unit":     "km",
				},
			},
		},
	}
	return c.search(ctx, query)
}

// UpcomingEvents lists events starting within the given window.
func (c *Catalog) UpcomingEvents(ctx context.Context, within time.Duration, limit int) ([]*domain.ContentItem, error) {
	now := time.Now()
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"type": string(domain.ContentEvent)}},
					map[string]any{
						"range": map[string]any{
							"event_start": map[string]any{
								"gte": formatTime(now),
								"lte": formatTime(now.Add(within)),
							},
						},
					},
				},
			},
		},
		"sort": []any{
			map[string]any{"event_start": map[string]any{"order": "asc"}},
		},
	}
	return c.search(ctx, query)
}

// NewOrganizations lists organizations created at or after since.
func (c *Catalog) NewOrganizations(ctx context.Context, since time.Time, limit int) ([]*domain.ContentItem, error) {
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"type": string(domain.ContentOrganization)}},
					map[string]any{
						"range": map[string]any{
							"created_at": map[string]any{"gte": formatTime(since)},
						},
					},
				},
			},
		},
		"sort": []any{
			map[string]any{"created_at": map[string]any{"order": "desc"}},
		},
	}
	return c.search(ctx, query)
}

// ItemsByTag lists items carrying the given tag, most engaged first.
func (c *Catalog) ItemsByTag(ctx context.Context, tag string, limit int) ([]*domain.ContentItem, error) {
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"term": map[string]any{"tags.name": tag},
		},
		"sort": []any{
			map[string]any{"engagement_count": map[string]any{"order": "desc"}},
			map[string]any{"created_at": map[string]any{"order": "desc"}},
		},
	}
	return c.search(ctx, query)
}

// PopularTags returns the platform-wide most used tag names.
func (c *Catalog) PopularTags(ctx context.Context, limit int) ([]string, error) {
	query := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"tags": map[string]any{
				"terms": map[string]any{
					"field": "tags.name",
					"size":  limit,
				},
			},
		},
	}

	res, err := c.client.Search(ctx, c.config.Indices.Content, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	var esResponse struct {
		Aggregations struct {
			Tags struct {
				Buckets []struct {
					Key string `json:"key"`
				} `json:"buckets"`
			} `json:"tags"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode popular tags response: %w", err)
	}

	tags := make([]string, 0, len(esResponse.Aggregations.Tags.Buckets))
	for _, b := range esResponse.Aggregations.Tags.Buckets {
		tags = append(tags, b.Key)
	}
	return tags, nil
}

// search executes a query against the content index and parses items.
func (c *Catalog) search(ctx context.Context, query map[string]any) ([]*domain.ContentItem, error) {
	res, err := c.client.Search(ctx, c.config.Indices.Content, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	return parseItems(res.Body)
}

func parseItems(body io.Reader) ([]*domain.ContentItem, error) {
	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string             `json:"_id"`
				Source domain.ContentItem `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	items := make([]*domain.ContentItem, 0, len(esResponse.Hits.Hits))
	for i := range esResponse.Hits.Hits {
		hit := esResponse.Hits.Hits[i]
		if hit.Source.ID == "" {
			hit.Source.ID = hit.ID
		}
		item := hit.Source
		items = append(items, &item)
	}
	return items, nil
}
