package repos

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&types.Category{}, &types.Post{}, &types.ReconcileRun{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return log
}

func TestCreateIfAbsentIdempotent(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewCategoryRepo(gdb, newTestLogger(t))
	ctx := context.Background()

	first, created, err := repo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "2022", Name: "2022"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created {
		t.Fatalf("first create should report created")
	}

	second, created, err := repo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "2022", Name: "2022"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("second create should not report created")
	}
	if second.ID != first.ID {
		t.Fatalf("second create returned different id: %s vs %s", second.ID, first.ID)
	}

	var n int64
	if err := gdb.Model(&types.Category{}).Where("slug = ?", "2022").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one row for slug, got %d", n)
	}
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewCategoryRepo(gdb, newTestLogger(t))
	ctx := context.Background()

	const workers = 8
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, _, err := repo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "22-ci-07", Name: "22 Ci 07"})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = row.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("workers resolved to different ids: %s vs %s", ids[i], ids[0])
		}
	}

	var n int64
	if err := gdb.Model(&types.Category{}).Where("slug = ?", "22-ci-07").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one row after concurrent creates, got %d", n)
	}
}

func TestRecomputePostCounts(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	catRepo := NewCategoryRepo(gdb, log)
	postRepo := NewPostRepo(gdb, log)
	ctx := context.Background()

	cat, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "2021", Name: "2021", PostCount: 99})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	other, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "other-topic", Name: "Other Topic", PostCount: 99})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := postRepo.Create(ctx, nil, []*types.Post{
		{Body: "a", CategoryID: cat.ID},
		{Body: "b", CategoryID: cat.ID},
	}); err != nil {
		t.Fatalf("create posts: %v", err)
	}

	if err := catRepo.RecomputePostCounts(ctx, nil); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	got, err := catRepo.GetBySlug(ctx, nil, "2021")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PostCount != 2 {
		t.Fatalf("post_count=%d, want 2", got.PostCount)
	}
	gotOther, err := catRepo.GetByID(ctx, nil, other.ID)
	if err != nil {
		t.Fatalf("get other: %v", err)
	}
	if gotOther.PostCount != 0 {
		t.Fatalf("other post_count=%d, want 0", gotOther.PostCount)
	}
}

func TestDeleteEmptyKeepsCatchAllAndParents(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	catRepo := NewCategoryRepo(gdb, log)
	postRepo := NewPostRepo(gdb, log)
	ctx := context.Background()

	catchAll, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: types.CatchAllSlug, Name: "Uncategorized"})
	if err != nil {
		t.Fatalf("create catch-all: %v", err)
	}
	year, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "2022", Name: "2022"})
	if err != nil {
		t.Fatalf("create year: %v", err)
	}
	child, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "22-ci-07", Name: "22 Ci 07", ParentID: &year.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	empty, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "stale-topic", Name: "Stale Topic"})
	if err != nil {
		t.Fatalf("create empty: %v", err)
	}
	if _, err := postRepo.Create(ctx, nil, []*types.Post{{Body: "x", CategoryID: child.ID}}); err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := catRepo.RecomputePostCounts(ctx, nil); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	pruned, err := catRepo.DeleteEmpty(ctx, nil, types.CatchAllSlug)
	if err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned=%d, want 1 (only the stale topic)", pruned)
	}

	for _, want := range []struct {
		id   uuid.UUID
		slug string
	}{
		{catchAll.ID, types.CatchAllSlug},
		{year.ID, "2022"},
		{child.ID, "22-ci-07"},
	} {
		got, err := catRepo.GetByID(ctx, nil, want.id)
		if err != nil {
			t.Fatalf("get %s: %v", want.slug, err)
		}
		if got == nil {
			t.Fatalf("category %s was pruned but must survive", want.slug)
		}
	}
	gone, err := catRepo.GetByID(ctx, nil, empty.ID)
	if err != nil {
		t.Fatalf("get pruned: %v", err)
	}
	if gone != nil {
		t.Fatalf("empty category should have been pruned")
	}
}

func TestGetOrphanChildren(t *testing.T) {
	gdb := newTestDB(t)
	catRepo := NewCategoryRepo(gdb, newTestLogger(t))
	ctx := context.Background()

	year, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "2020", Name: "2020"})
	if err != nil {
		t.Fatalf("create year: %v", err)
	}
	missing := uuid.New()
	orphan, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "20-0001-20-09", Name: "20-0001-20-09", ParentID: &missing})
	if err != nil {
		t.Fatalf("create orphan: %v", err)
	}
	if _, _, err := catRepo.CreateIfAbsent(ctx, nil, &types.Category{Slug: "20-ci-01", Name: "20 Ci 01", ParentID: &year.ID}); err != nil {
		t.Fatalf("create child: %v", err)
	}

	orphans, err := catRepo.GetOrphanChildren(ctx, nil)
	if err != nil {
		t.Fatalf("get orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != orphan.ID {
		t.Fatalf("orphans=%v, want exactly the dangling child", orphans)
	}
}
