package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseOptions configures the PostgreSQL connection
type DatabaseOptions struct {
	Host            string
	Port            int
	Name            string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// OpenDatabase connects to PostgreSQL through GORM
func OpenDatabase(opts DatabaseOptions) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		opts.Password,
		opts.Name,
		opts.SSLMode,
	)

	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return db, nil
}

// Repository stores cases in the recovery_cases table
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed store
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate creates or updates the recovery_cases table
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CaseRecord{})
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) Create(ctx context.Context, rec *CaseRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (*CaseRecord, error) {
	var rec CaseRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return &rec, nil
}

func (r *Repository) Update(ctx context.Context, rec *CaseRecord) error {
	res := r.db.WithContext(ctx).
		Model(&CaseRecord{}).
		Where("id = ? AND user_id = ?", rec.ID, rec.OwnerID).
		Updates(map[string]interface{}{
			"status":            rec.Status,
			"complaint_id":      rec.ComplaintReference,
			"amount":            rec.LossAmount,
			"portal":            rec.PortalUsed,
			"next_action":       rec.NextAction,
			"selected_evidence": rec.SelectedEvidence,
			"ai_insight":        rec.AIInsight,
			"updated_at":        rec.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update case: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&CaseRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete case: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, ownerID string) ([]CaseRecord, error) {
	var records []CaseRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return records, nil
}
