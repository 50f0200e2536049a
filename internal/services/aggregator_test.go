package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/vantor/intelpost-backend/internal/types"
)

func TestReconcileCountsAccuracy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	for _, body := range []string{
		"/category/2022/22-ci-07 first",
		"/category/2022/22-ci-07 second",
		"/category/2022 year only",
		"no reference",
	} {
		post := env.seedPost(t, body)
		if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
			t.Fatalf("resolve %q: %v", body, err)
		}
	}

	pruned, err := env.aggregator.ReconcileCounts(ctx)
	if err != nil {
		t.Fatalf("reconcile counts: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("pruned=%d, want 0", pruned)
	}

	for slug, want := range map[string]int{
		"22-ci-07":         2,
		"2022":             1,
		types.CatchAllSlug: 1,
	} {
		cat := env.mustCategoryBySlug(t, slug)
		if cat.PostCount != want {
			t.Fatalf("%s post_count=%d, want %d", slug, cat.PostCount, want)
		}
	}
}

func TestReconcileCountsPrunesEmptied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	post := env.seedPost(t, "/category/old-topic")
	if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.aggregator.ReconcileCounts(ctx); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	env.mustCategoryBySlug(t, "old-topic")

	// The post moves on; old-topic is now empty and must go.
	if err := env.db.Model(&types.Post{}).Where("id = ?", post.ID).
		Update("body", "/category/new-topic").Error; err != nil {
		t.Fatalf("edit post: %v", err)
	}
	post.Body = "/category/new-topic"
	if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	pruned, err := env.aggregator.ReconcileCounts(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned=%d, want 1", pruned)
	}

	old, err := env.categories.GetBySlug(ctx, nil, "old-topic")
	if err != nil {
		t.Fatalf("get old-topic: %v", err)
	}
	if old != nil {
		t.Fatalf("old-topic survived despite being empty")
	}
	if got := env.mustCategoryBySlug(t, "new-topic"); got.PostCount != 1 {
		t.Fatalf("new-topic post_count=%d, want 1", got.PostCount)
	}
}

func TestReconcileCountsPrunesFreedYearRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	post := env.seedPost(t, "/category/2019/19-ci-01")
	if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.aggregator.ReconcileCounts(ctx); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	env.mustCategoryBySlug(t, "2019")

	post.Body = "/category/other-topic"
	if err := env.db.Model(&types.Post{}).Where("id = ?", post.ID).
		Update("body", post.Body).Error; err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}

	// First round prunes the empty leaf, second the year root it was
	// holding up.
	pruned, err := env.aggregator.ReconcileCounts(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("pruned=%d, want 2 (leaf then freed year root)", pruned)
	}
	for _, slug := range []string{"19-ci-01", "2019"} {
		cat, err := env.categories.GetBySlug(ctx, nil, slug)
		if err != nil {
			t.Fatalf("get %s: %v", slug, err)
		}
		if cat != nil {
			t.Fatalf("%s survived despite being empty", slug)
		}
	}
}

func TestReconcileCountsNeverPrunesCatchAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	// Catch-all holds zero posts here.
	pruned, err := env.aggregator.ReconcileCounts(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("pruned=%d, want 0", pruned)
	}
	cat := env.mustCategoryBySlug(t, types.CatchAllSlug)
	if cat.PostCount != 0 {
		t.Fatalf("catch-all post_count=%d, want 0", cat.PostCount)
	}
}

func TestReconcileCountsKeepsParentWithChildren(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	// Year root itself has no direct posts; only its child does.
	post := env.seedPost(t, "/category/2018/18-ci-09")
	if _, _, err := env.resolver.Resolve(ctx, post); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pruned, err := env.aggregator.ReconcileCounts(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("pruned=%d, want 0", pruned)
	}
	year := env.mustCategoryBySlug(t, "2018")
	if year.PostCount != 0 {
		t.Fatalf("year root post_count=%d, want 0 (no direct posts)", year.PostCount)
	}
}

func TestReconcileCountsRepairsOrphanBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.hierarchy.EnsureCatchAll(ctx); err != nil {
		t.Fatalf("ensure catch-all: %v", err)
	}

	missing := uuid.New()
	orphan, _, err := env.categories.CreateIfAbsent(ctx, nil, &types.Category{
		Slug:     "17-ci-02",
		Name:     "17 Ci 02",
		ParentID: &missing,
	})
	if err != nil {
		t.Fatalf("create orphan: %v", err)
	}
	post := env.seedPost(t, "whatever")
	if err := env.posts.UpdateCategory(ctx, nil, post.ID, orphan.ID); err != nil {
		t.Fatalf("assign to orphan: %v", err)
	}

	if _, err := env.aggregator.ReconcileCounts(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	gone, err := env.categories.GetBySlug(ctx, nil, "17-ci-02")
	if err != nil {
		t.Fatalf("get orphan: %v", err)
	}
	if gone != nil {
		t.Fatalf("orphan branch survived repair")
	}
	reloaded, err := env.posts.GetByIDs(ctx, nil, []uuid.UUID{post.ID})
	if err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0].CategoryID != env.hierarchy.CatchAllID() {
		t.Fatalf("orphaned post not reassigned to catch-all")
	}
	if got := env.mustCategoryBySlug(t, types.CatchAllSlug); got.PostCount != 1 {
		t.Fatalf("catch-all post_count=%d, want 1", got.PostCount)
	}
}
