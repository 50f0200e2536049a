package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vantor/intelpost-backend/internal/handlers"
	"github.com/vantor/intelpost-backend/internal/middleware"
)

type RouterConfig struct {
	TaxonomyHandler *handlers.TaxonomyHandler
	RequestLog      *middleware.RequestLogMiddleware
	ServiceName     string
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.RequestLog != nil {
		router.Use(cfg.RequestLog.Handler())
	}

	// Cors
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/categories/tree", cfg.TaxonomyHandler.GetCategoryTree)
		api.POST("/reconcile", cfg.TaxonomyHandler.RunReconciliation)
		api.GET("/reconcile/:id", cfg.TaxonomyHandler.GetReconcileRun)
	}

	return router
}
