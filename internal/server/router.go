package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/voltbase/scooterdex-backend/internal/handlers"
)

type RouterConfig struct {
	JobsHandler   *handlers.JobsHandler
	StoresHandler *handlers.StoresHandler
	RunsHandler   *handlers.RunsHandler
	AllowOrigins  []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
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
		api.POST("/scrape", cfg.JobsHandler.TriggerScrape)
		api.POST("/ai/process", cfg.JobsHandler.TriggerAIProcessing)
		api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)

		api.GET("/stores", cfg.StoresHandler.ListStores)
		api.GET("/stores/:place_id", cfg.StoresHandler.GetStore)
		api.GET("/search", cfg.StoresHandler.SearchByZip)

		api.GET("/runs", cfg.RunsHandler.ListRuns)
		api.GET("/runs/:id", cfg.RunsHandler.GetRun)
	}

	return router
}
