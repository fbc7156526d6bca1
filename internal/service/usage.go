package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/cache"
	"github.com/quothlabs/quoth/internal/port/database"
)

// LimitType names a rate-limited operation class.
type LimitType string

// Limit types.
const (
	LimitSemanticSearch LimitType = "semantic_search"
	LimitRAGAnswer      LimitType = "rag_answer"
)

// Unlimited marks a quota with no daily cap.
const Unlimited = -1

// tierLimits is the immutable tier configuration.
type tierLimits struct {
	SemanticSearches int
	RAGAnswers       int
	Rerank           bool
	GenesisRerank    bool
}

var limitsByTier = map[project.Tier]tierLimits{
	project.TierFree: {SemanticSearches: 5, RAGAnswers: 3, Rerank: false, GenesisRerank: true},
	project.TierPro:  {SemanticSearches: Unlimited, RAGAnswers: Unlimited, Rerank: true, GenesisRerank: true},
	project.TierTeam: {SemanticSearches: Unlimited, RAGAnswers: Unlimited, Rerank: true, GenesisRerank: true},
}

// Usage is one gating decision.
type Usage struct {
	Allowed   bool
	Remaining int
	Limit     int
	Tier      project.Tier
}

const tierCacheTTL = 5 * time.Minute

// counterKey identifies one daily counter.
type counterKey struct {
	ProjectID string
	Limit     LimitType
}

type counter struct {
	count int
	date  string // yyyy-mm-dd UTC
}

// UsageService is the tier and usage meter: cached tier lookups and
// process-local per-UTC-day counters. Replica divergence is accepted;
// these are soft limits.
type UsageService struct {
	store database.Store
	cache cache.Cache
	group singleflight.Group

	mu       sync.Mutex
	counters map[counterKey]*counter
}

// NewUsageService creates the meter.
func NewUsageService(store database.Store, c cache.Cache) *UsageService {
	return &UsageService{
		store:    store,
		cache:    c,
		counters: make(map[counterKey]*counter),
	}
}

// Tier returns the project's tier, cached for five minutes. Unknown or
// unreadable tiers default to free.
func (s *UsageService) Tier(ctx context.Context, projectID string) project.Tier {
	key := "tier:" + projectID
	if data, ok, _ := s.cache.Get(ctx, key); ok {
		return project.Tier(data)
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		tier, err := s.store.GetProjectTier(ctx, projectID)
		if err != nil || limitsByTier[tier].SemanticSearches == 0 {
			tier = project.TierFree
		}
		_ = s.cache.Set(ctx, key, []byte(tier), tierCacheTTL)
		return tier, nil
	})
	return v.(project.Tier)
}

// Check reports whether one more operation of limitType is admitted
// today. It does not consume quota; call Increment after admission.
func (s *UsageService) Check(ctx context.Context, projectID string, limitType LimitType) Usage {
	tier := s.Tier(ctx, projectID)
	limit := limitFor(tier, limitType)
	if limit == Unlimited {
		return Usage{Allowed: true, Remaining: Unlimited, Limit: Unlimited, Tier: tier}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(counterKey{ProjectID: projectID, Limit: limitType})
	remaining := limit - c.count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Allowed: c.count < limit, Remaining: remaining, Limit: limit, Tier: tier}
}

// Increment consumes one unit of quota. The first increment on a new
// UTC date resets the counter.
func (s *UsageService) Increment(projectID string, limitType LimitType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(counterKey{ProjectID: projectID, Limit: limitType})
	c.count++
}

// current returns the live counter for key, resetting it on UTC date
// rollover. Caller holds s.mu.
func (s *UsageService) current(key counterKey) *counter {
	today := time.Now().UTC().Format("2006-01-02")
	c, ok := s.counters[key]
	if !ok || c.date != today {
		c = &counter{date: today}
		s.counters[key] = c
	}
	return c
}

// ShouldRerank reports whether reranking runs for this project. Free
// tier reranks only during genesis scans.
func (s *UsageService) ShouldRerank(ctx context.Context, projectID string, isGenesis bool) bool {
	limits := limitsByTier[s.Tier(ctx, projectID)]
	return limits.Rerank || (isGenesis && limits.GenesisRerank)
}

// FormatFooter renders the trailing quota message shown to free-tier
// callers. Other tiers get no footer.
func FormatFooter(u Usage) string {
	if u.Tier != project.TierFree || u.Limit == Unlimited {
		return ""
	}
	return fmt.Sprintf("Free tier: %d of %d semantic searches remaining today.", u.Remaining, u.Limit)
}

func limitFor(tier project.Tier, limitType LimitType) int {
	limits, ok := limitsByTier[tier]
	if !ok {
		limits = limitsByTier[project.TierFree]
	}
	switch limitType {
	case LimitRAGAnswer:
		return limits.RAGAnswers
	default:
		return limits.SemanticSearches
	}
}
