package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

func testJobDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.JobRun{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM job_run")
		sqlDB.Close()
	})
	return db
}

// sqlite has no SKIP LOCKED; the claim query itself is what these tests
// exercise, so the locking clause is dropped.
func newTestJobRunRepo(t *testing.T, db *gorm.DB) JobRunRepo {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	repo := NewJobRunRepo(db, log).(*jobRunRepo)
	repo.claimLock = nil
	return repo
}

func seedJob(t *testing.T, db *gorm.DB, job *types.JobRun) *types.JobRun {
	t.Helper()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.JobType == "" {
		job.JobType = types.JobTypeScrapeState
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func reloadJob(t *testing.T, db *gorm.DB, id uuid.UUID) *types.JobRun {
	t.Helper()
	var job types.JobRun
	if err := db.Where("id = ?", id).First(&job).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	return &job
}

func TestClaimNextRunnableClaimsOldestQueued(t *testing.T) {
	db := testJobDB(t)
	repo := newTestJobRunRepo(t, db)
	ctx := context.Background()

	older := seedJob(t, db, &types.JobRun{Status: types.JobStatusQueued, CreatedAt: time.Now().Add(-2 * time.Minute)})
	seedJob(t, db, &types.JobRun{Status: types.JobStatusQueued, CreatedAt: time.Now().Add(-1 * time.Minute)})

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID {
		t.Fatalf("claimed job: want=%v got=%+v", older.ID, claimed)
	}

	row := reloadJob(t, db, older.ID)
	if row.Status != types.JobStatusRunning {
		t.Fatalf("status: want=%q got=%q", types.JobStatusRunning, row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", row.Attempts)
	}
	if row.LockedAt == nil || row.HeartbeatAt == nil {
		t.Fatalf("lock bookkeeping: locked_at=%v heartbeat_at=%v", row.LockedAt, row.HeartbeatAt)
	}
}

func TestClaimNextRunnableRetriesFailedOnlyAfterDelay(t *testing.T) {
	db := testJobDB(t)
	repo := newTestJobRunRepo(t, db)
	ctx := context.Background()

	recent := time.Now().Add(-10 * time.Second)
	job := seedJob(t, db, &types.JobRun{Status: types.JobStatusFailed, Attempts: 1, LastErrorAt: &recent})

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed a failed job inside its retry delay: %+v", claimed)
	}

	old := time.Now().Add(-1 * time.Minute)
	if err := db.Model(&types.JobRun{}).Where("id = ?", job.ID).Update("last_error_at", old).Error; err != nil {
		t.Fatalf("age last_error_at: %v", err)
	}

	claimed, err = repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed job: want=%v got=%+v", job.ID, claimed)
	}
	if row := reloadJob(t, db, job.ID); row.Attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", row.Attempts)
	}
}

func TestClaimNextRunnableReclaimsStaleRunning(t *testing.T) {
	db := testJobDB(t)
	repo := newTestJobRunRepo(t, db)
	ctx := context.Background()

	fresh := time.Now()
	seedJob(t, db, &types.JobRun{Status: types.JobStatusRunning, Attempts: 1, HeartbeatAt: &fresh})

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed a running job with a live heartbeat: %+v", claimed)
	}

	stale := time.Now().Add(-20 * time.Minute)
	job := seedJob(t, db, &types.JobRun{Status: types.JobStatusRunning, Attempts: 1, HeartbeatAt: &stale})

	claimed, err = repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed job: want=%v got=%+v", job.ID, claimed)
	}
	if row := reloadJob(t, db, job.ID); row.Attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", row.Attempts)
	}
}

func TestClaimNextRunnableSkipsFailedAtAttemptCeiling(t *testing.T) {
	db := testJobDB(t)
	repo := newTestJobRunRepo(t, db)
	ctx := context.Background()

	old := time.Now().Add(-1 * time.Hour)
	seedJob(t, db, &types.JobRun{Status: types.JobStatusFailed, Attempts: 3, LastErrorAt: &old})

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed a job at the attempt ceiling: %+v", claimed)
	}
}
