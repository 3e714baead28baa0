package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/crewline/crewline/internal/database"
)

// GormStore persists history in a relational database through GORM.
// Supported drivers are postgres, mysql and sqlite (pure Go, no cgo).
type GormStore struct {
	db     *gorm.DB
	pool   *database.PoolManager
	logger *zap.Logger
}

// Open connects to the configured database and returns a ready store.
// Call AutoMigrate (or run the embedded migrations) before first use.
func Open(driver, dsn string, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s (supported: postgres, mysql, sqlite)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect history database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	if driver == "sqlite" {
		// Each new sqlite connection to :memory: opens its own empty
		// database, so the pool must stay at a single connection.
		poolCfg.MaxOpenConns = 1
		poolCfg.MaxIdleConns = 1
		poolCfg.HealthCheckInterval = 0
	}
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("history store connected", zap.String("driver", driver))
	return &GormStore{
		db:     db,
		pool:   pool,
		logger: logger.With(zap.String("component", "history.gorm")),
	}, nil
}

// NewGormStore wraps an existing GORM handle. Pool tuning and lifecycle
// stay with the caller; Close is a no-op beyond releasing the handle.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "history.gorm")),
	}
}

// AutoMigrate creates or updates the runs and task_executions tables.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Run{}, &TaskExecution{})
}

// DB exposes the underlying GORM handle for health checks.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Name() string { return "gorm" }

func (s *GormStore) SaveRun(ctx context.Context, run *Run) error {
	return s.db.WithContext(ctx).Save(run).Error
}

func (s *GormStore) SaveTask(ctx context.Context, task *TaskExecution) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) ListRuns(ctx context.Context, q RunQuery) ([]*Run, error) {
	tx := s.db.WithContext(ctx).Model(&Run{})
	if q.Pipeline != "" {
		tx = tx.Where("pipeline = ?", q.Pipeline)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var runs []*Run
	if err := tx.Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *GormStore) ListTasks(ctx context.Context, runID string) ([]*TaskExecution, error) {
	var tasks []*TaskExecution
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormStore) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
