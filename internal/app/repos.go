package app

import (
	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
)

type Repos struct {
	Store     repos.StoreRepo
	ScrapeRun repos.ScrapeRunRepo
	JobRun    repos.JobRunRepo
	AICallLog repos.AICallLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Store:     repos.NewStoreRepo(db, log, repos.StoreRepoConfig{}),
		ScrapeRun: repos.NewScrapeRunRepo(db, log),
		JobRun:    repos.NewJobRunRepo(db, log),
		AICallLog: repos.NewAICallLogRepo(db, log),
	}
}
