package service

import (
	"context"
	"testing"

	"github.com/quothlabs/quoth/internal/domain/project"
)

func TestUsageFreeTierDailyCap(t *testing.T) {
	store := &mockStore{
		getProjectTierFn: func(context.Context, string) (project.Tier, error) {
			return project.TierFree, nil
		},
	}
	svc := NewUsageService(store, newMockCache())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u := svc.Check(ctx, "p1", LimitSemanticSearch)
		if !u.Allowed {
			t.Fatalf("search %d: expected allowed, got denied", i+1)
		}
		if want := 5 - i; u.Remaining != want {
			t.Fatalf("search %d: remaining = %d, want %d", i+1, u.Remaining, want)
		}
		svc.Increment("p1", LimitSemanticSearch)
	}

	u := svc.Check(ctx, "p1", LimitSemanticSearch)
	if u.Allowed {
		t.Fatal("sixth search should be denied on the free tier")
	}
	if u.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", u.Remaining)
	}
}

func TestUsageProTierUnlimited(t *testing.T) {
	store := &mockStore{
		getProjectTierFn: func(context.Context, string) (project.Tier, error) {
			return project.TierPro, nil
		},
	}
	svc := NewUsageService(store, newMockCache())

	for i := 0; i < 100; i++ {
		svc.Increment("p1", LimitSemanticSearch)
	}
	u := svc.Check(context.Background(), "p1", LimitSemanticSearch)
	if !u.Allowed || u.Limit != Unlimited {
		t.Fatalf("pro tier should be unlimited, got %+v", u)
	}
}

func TestUsageUTCRollover(t *testing.T) {
	svc := NewUsageService(&mockStore{}, newMockCache())
	key := counterKey{ProjectID: "p1", Limit: LimitSemanticSearch}

	svc.mu.Lock()
	svc.counters[key] = &counter{count: 5, date: "2020-01-01"}
	svc.mu.Unlock()

	u := svc.Check(context.Background(), "p1", LimitSemanticSearch)
	if !u.Allowed {
		t.Fatal("a stale-dated counter must reset on the next check")
	}
	if u.Remaining != 5 {
		t.Fatalf("remaining = %d, want 5 after rollover", u.Remaining)
	}
}

func TestUsageTierCached(t *testing.T) {
	lookups := 0
	store := &mockStore{
		getProjectTierFn: func(context.Context, string) (project.Tier, error) {
			lookups++
			return project.TierTeam, nil
		},
	}
	svc := NewUsageService(store, newMockCache())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if tier := svc.Tier(ctx, "p1"); tier != project.TierTeam {
			t.Fatalf("tier = %s, want team", tier)
		}
	}
	if lookups != 1 {
		t.Fatalf("store lookups = %d, want 1 (cached)", lookups)
	}
}

func TestUsageUnknownTierDefaultsFree(t *testing.T) {
	store := &mockStore{
		getProjectTierFn: func(context.Context, string) (project.Tier, error) {
			return project.Tier("enterprise"), nil
		},
	}
	svc := NewUsageService(store, newMockCache())
	if tier := svc.Tier(context.Background(), "p1"); tier != project.TierFree {
		t.Fatalf("unknown tier should map to free, got %s", tier)
	}
}

func TestShouldRerank(t *testing.T) {
	tests := []struct {
		name      string
		tier      project.Tier
		isGenesis bool
		want      bool
	}{
		{"free normal", project.TierFree, false, false},
		{"free genesis", project.TierFree, true, true},
		{"pro normal", project.TierPro, false, true},
		{"team normal", project.TierTeam, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{
				getProjectTierFn: func(context.Context, string) (project.Tier, error) {
					return tt.tier, nil
				},
			}
			svc := NewUsageService(store, newMockCache())
			if got := svc.ShouldRerank(context.Background(), "p1", tt.isGenesis); got != tt.want {
				t.Fatalf("ShouldRerank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFooter(t *testing.T) {
	free := Usage{Tier: project.TierFree, Remaining: 2, Limit: 5}
	if got := FormatFooter(free); got == "" {
		t.Fatal("free tier should get a quota footer")
	}
	pro := Usage{Tier: project.TierPro, Limit: Unlimited}
	if got := FormatFooter(pro); got != "" {
		t.Fatalf("pro tier footer = %q, want empty", got)
	}
}
