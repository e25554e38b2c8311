package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/cafescout/internal/discovery/domain"
)

const (
	defaultBranchHashKey = "catalog:branches"
	defaultStoreHashKey  = "catalog:stores"
	defaultGeoKey        = "catalog:branch:locs"
)

// RedisCatalog keeps branch and store JSON in hashes plus a GEO index over
// branch coordinates for radius-bounded listing.
type RedisCatalog struct {
	client    *redis.Client
	branchKey string
	storeKey  string
	geoKey    string
	tracer    trace.Tracer
}

// NewRedisCatalog constructs a Redis-backed Source.
func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{
		client:    client,
		branchKey: defaultBranchHashKey,
		storeKey:  defaultStoreHashKey,
		geoKey:    defaultGeoKey,
		tracer:    otel.Tracer("cafescout.catalog"),
	}
}

// ListBranches loads every branch from the hash.
func (r *RedisCatalog) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.list_branches")
	defer span.End()

	values, err := r.client.HVals(ctx, r.branchKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals: %w", err)
	}
	branches := make([]domain.Branch, 0, len(values))
	for _, raw := range values {
		var branch domain.Branch
		if err := json.Unmarshal([]byte(raw), &branch); err != nil {
			return nil, fmt.Errorf("decode branch: %w", err)
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

// GetBranch loads one branch.
func (r *RedisCatalog) GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	raw, err := r.client.HGet(ctx, r.branchKey, id.String()).Result()
	if err == redis.Nil {
		return domain.Branch{}, ErrNotFound
	}
	if err != nil {
		return domain.Branch{}, fmt.Errorf("redis hget: %w", err)
	}
	var branch domain.Branch
	if err := json.Unmarshal([]byte(raw), &branch); err != nil {
		return domain.Branch{}, fmt.Errorf("decode branch: %w", err)
	}
	return branch, nil
}

// ListStores loads the store metadata keyed by id.
func (r *RedisCatalog) ListStores(ctx context.Context) (map[uuid.UUID]domain.Store, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.list_stores")
	defer span.End()

	values, err := r.client.HVals(ctx, r.storeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals: %w", err)
	}
	stores := make(map[uuid.UUID]domain.Store, len(values))
	for _, raw := range values {
		var store domain.Store
		if err := json.Unmarshal([]byte(raw), &store); err != nil {
			return nil, fmt.Errorf("decode store: %w", err)
		}
		stores[store.ID] = store
	}
	return stores, nil
}

// UpsertBranch writes the branch JSON and refreshes the GEO index. Branches
// without coordinates stay out of the index.
func (r *RedisCatalog) UpsertBranch(ctx context.Context, branch domain.Branch) error {
	payload, err := json.Marshal(branch)
	if err != nil {
		return fmt.Errorf("encode branch: %w", err)
	}
	if err := r.client.HSet(ctx, r.branchKey, branch.ID.String(), payload).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	if branch.Latitude == nil || branch.Longitude == nil {
		return r.client.ZRem(ctx, r.geoKey, branch.ID.String()).Err()
	}
	return r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Name:      branch.ID.String(),
		Latitude:  *branch.Latitude,
		Longitude: *branch.Longitude,
	}).Err()
}

// UpsertStore writes the store JSON.
func (r *RedisCatalog) UpsertStore(ctx context.Context, store domain.Store) error {
	payload, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return r.client.HSet(ctx, r.storeKey, store.ID.String(), payload).Err()
}

// NearbyBranchIDs returns branch ids within radiusKM of the point, closest
// first, capped at limit.
func (r *RedisCatalog) NearbyBranchIDs(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]uuid.UUID, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.nearby")
	defer span.End()

	locations, err := r.client.GeoRadius(ctx, r.geoKey, point.Lng, point.Lat, &redis.GeoRadiusQuery{
		Radius:   radiusKM,
		Unit:     "km",
		Sort:     "ASC",
		Count:    limit,
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis georadius: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(locations))
	for _, loc := range locations {
		id, err := uuid.Parse(loc.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid geo member %q: %w", loc.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
