package app

import (
	"github.com/voltbase/scooterdex-backend/internal/handlers"
	"github.com/voltbase/scooterdex-backend/internal/logger"
)

type Handlers struct {
	Jobs   *handlers.JobsHandler
	Stores *handlers.StoresHandler
	Runs   *handlers.RunsHandler
}

func wireHandlers(log *logger.Logger, services Services, reposet Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Jobs:   handlers.NewJobsHandler(services.JobService),
		Stores: handlers.NewStoresHandler(reposet.Store, services.Search),
		Runs:   handlers.NewRunsHandler(reposet.ScrapeRun),
	}
}
