// Package projects resolves and caches the projects a token may be scoped
// to.
package projects

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/urlutil"
)

// ErrListProjects wraps every failure to obtain a project list
var ErrListProjects = errors.New("unable to retrieve authorized projects")

// Query identifies whose projects to list
type Query struct {
	Token     string
	UserID    string
	AuthURL   string
	Federated bool
}

// Resolver lists projects through the identity client and memoizes the
// sorted result by token id. Concurrent lookups for one token share a
// single upstream call.
type Resolver struct {
	client  identity.Client
	cache   Cache
	logger  *observability.Logger
	metrics *observability.AuthMetrics
	group   singleflight.Group
}

// NewResolver creates a resolver. A nil cache uses an LRUCache with
// default bounds; logger and metrics may be nil.
func NewResolver(client identity.Client, cache Cache, logger *observability.Logger, metrics *observability.AuthMetrics) *Resolver {
	if cache == nil {
		cache = NewLRUCache(DefaultCacheSize, DefaultCacheTTL)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{
		client:  client,
		cache:   cache,
		logger:  logger.WithComponent("projects"),
		metrics: metrics,
	}
}

// List returns the projects q.Token may access, sorted case-insensitively
// by name. Results are cached per token; failures are not.
func (r *Resolver) List(ctx context.Context, q Query) ([]identity.Project, error) {
	if q.Token == "" {
		return r.fetch(ctx, q)
	}

	if projects, ok := r.cache.Get(ctx, q.Token); ok {
		r.metrics.RecordProjectCache(r.cache.Name(), true)
		return projects, nil
	}
	r.metrics.RecordProjectCache(r.cache.Name(), false)

	// The shared fetch outlives any one caller giving up on it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(q.Token, func() (interface{}, error) {
		if projects, ok := r.cache.Get(shared, q.Token); ok {
			return projects, nil
		}
		projects, err := r.fetch(shared, q)
		if err != nil {
			return nil, err
		}
		r.cache.Add(shared, q.Token, projects)
		// Hand back what the cache holds so every caller sees one list.
		if cached, ok := r.cache.Get(shared, q.Token); ok {
			return cached, nil
		}
		return projects, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]identity.Project), nil
}

// Remove forgets the cached list for token
func (r *Resolver) Remove(ctx context.Context, token string) {
	if token == "" {
		return
	}
	r.cache.Remove(ctx, token)
}

func (r *Resolver) fetch(ctx context.Context, q Query) ([]identity.Project, error) {
	ctx, span := observability.StartSpan(ctx, "projects.list")
	defer span.End()

	authURL := urlutil.FixAuthURLVersion(q.AuthURL, r.client.Version(), r.logger)
	projects, err := r.client.ListProjects(ctx, authURL, q.Token, identity.ListOptions{
		UserID:    q.UserID,
		Federated: q.Federated,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrListProjects, err)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})
	return projects, nil
}
