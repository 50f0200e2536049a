package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/taxonomy"
	"github.com/vantor/intelpost-backend/internal/types"
)

// testEnv wires the full service stack over an in-memory store, one
// isolated database per test.
type testEnv struct {
	db         *gorm.DB
	log        *logger.Logger
	categories repos.CategoryRepo
	posts      repos.PostRepo
	runs       repos.ReconcileRunRepo
	hierarchy  HierarchyService
	resolver   AssignmentService
	aggregator AggregationService
}

func newTestEnv(t *testing.T) *testEnv {
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
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	rules := taxonomy.DefaultRules()
	categoryRepo := repos.NewCategoryRepo(gdb, log)
	postRepo := repos.NewPostRepo(gdb, log)
	runRepo := repos.NewReconcileRunRepo(gdb, log)
	hierarchy := NewHierarchyService(categoryRepo, log)
	resolver := NewAssignmentService(
		taxonomy.NewExtractor(rules),
		taxonomy.NewClassifier(rules),
		hierarchy,
		postRepo,
		log,
	)
	aggregator := NewAggregationService(gdb, categoryRepo, postRepo, hierarchy, log)

	return &testEnv{
		db:         gdb,
		log:        log,
		categories: categoryRepo,
		posts:      postRepo,
		runs:       runRepo,
		hierarchy:  hierarchy,
		resolver:   resolver,
		aggregator: aggregator,
	}
}

func (e *testEnv) seedPost(t *testing.T, body string) *types.Post {
	t.Helper()
	post := &types.Post{Title: "t", Body: body}
	if _, err := e.posts.Create(context.Background(), nil, []*types.Post{post}); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post
}

func (e *testEnv) mustCategoryBySlug(t *testing.T, slug string) *types.Category {
	t.Helper()
	cat, err := e.categories.GetBySlug(context.Background(), nil, slug)
	if err != nil {
		t.Fatalf("get category %q: %v", slug, err)
	}
	if cat == nil {
		t.Fatalf("category %q not found", slug)
	}
	return cat
}

func (e *testEnv) categoryCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&types.Category{}).Count(&n).Error; err != nil {
		t.Fatalf("count categories: %v", err)
	}
	return n
}
