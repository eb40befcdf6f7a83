package app

import (
	"github.com/gin-gonic/gin"

	"github.com/voltbase/scooterdex-backend/internal/server"
)

func wireRouter(handlerset Handlers, cfg Config) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		JobsHandler:   handlerset.Jobs,
		StoresHandler: handlerset.Stores,
		RunsHandler:   handlerset.Runs,
		AllowOrigins:  cfg.AllowOrigins,
	})
}
