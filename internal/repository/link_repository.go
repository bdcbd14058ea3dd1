package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kirved/linkly/internal/model"
)

// ErrDuplicateCode is returned when an insert collides with an existing
// short code. The unique index on links.short_code is the real guard; the
// service layer retries generation when it sees this.
var ErrDuplicateCode = errors.New("short code already exists")

// LinkRepository handles database operations for links
type LinkRepository struct {
	db *gorm.DB
}

// NewLinkRepository connects to MySQL and migrates the schema.
func NewLinkRepository(dsn string, maxIdleConns, maxOpenConns int) (*LinkRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database instance")
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	repo := &LinkRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewLinkRepositoryWithDB wraps an existing gorm connection. The connection
// must be opened with TranslateError enabled.
func NewLinkRepositoryWithDB(db *gorm.DB) (*LinkRepository, error) {
	repo := &LinkRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *LinkRepository) migrate() error {
	if err := r.db.AutoMigrate(&model.Link{}, &model.Visit{}); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

// Create inserts a new link, returning ErrDuplicateCode when the short code
// is already taken.
func (r *LinkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCode
		}
		return errors.Wrap(err, "failed to create link")
	}
	return nil
}

// GetByShortCode retrieves a link by short code, (nil, nil) when absent.
func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get link")
	}
	return &link, nil
}

// GetByOriginalURL finds an existing link for the same destination. A nil
// owner matches any record (global dedup for anonymous creations); a non-nil
// owner restricts the match to that owner's links.
func (r *LinkRepository) GetByOriginalURL(ctx context.Context, originalURL string, ownerID *uuid.UUID) (*model.Link, error) {
	q := r.db.WithContext(ctx).Where("original_url = ?", originalURL)
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}

	var link model.Link
	if err := q.First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get link by URL")
	}
	return &link, nil
}

// IncrementVisitCount atomically bumps the visit counter in SQL and returns
// the updated link, (nil, nil) when the code does not exist. The increment
// happens in the database, never read-modify-write in application memory.
func (r *LinkRepository) IncrementVisitCount(ctx context.Context, shortCode string) (*model.Link, error) {
	res := r.db.WithContext(ctx).Model(&model.Link{}).
		Where("short_code = ?", shortCode).
		UpdateColumn("visit_count", gorm.Expr("visit_count + ?", 1))
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to increment visit count")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByShortCode(ctx, shortCode)
}

// SetActive flips is_active as a single-column update and returns the
// refreshed link, (nil, nil) when the code does not exist. Touching only the
// targeted column keeps a concurrent visit-count increment from being
// clobbered by a stale full-row write.
func (r *LinkRepository) SetActive(ctx context.Context, shortCode string, active bool) (*model.Link, error) {
	if err := r.db.WithContext(ctx).Model(&model.Link{}).
		Where("short_code = ?", shortCode).
		Update("is_active", active).Error; err != nil {
		return nil, errors.Wrap(err, "failed to set link active state")
	}
	return r.GetByShortCode(ctx, shortCode)
}

// Update persists all fields of a link. Only for whole-record rewrites where
// the caller owns the row; counter and flag toggles go through the
// column-scoped operations instead.
func (r *LinkRepository) Update(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Save(link).Error; err != nil {
		return errors.Wrap(err, "failed to update link")
	}
	return nil
}

// Delete removes a link by short code
func (r *LinkRepository) Delete(ctx context.Context, shortCode string) error {
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).Delete(&model.Link{}).Error; err != nil {
		return errors.Wrap(err, "failed to delete link")
	}
	return nil
}

// BulkSetActive flips is_active on the owner's links among ids and returns
// how many rows changed. Scoping by owner in SQL keeps the operation safe even
// if the caller passes ids belonging to someone else.
func (r *LinkRepository) BulkSetActive(ctx context.Context, ids []int64, ownerID uuid.UUID, active bool) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Link{}).
		Where("id IN ? AND owner_id = ?", ids, ownerID).
		Update("is_active", active)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to bulk update links")
	}
	return res.RowsAffected, nil
}

// BulkDelete removes the owner's links among ids and returns the count.
func (r *LinkRepository) BulkDelete(ctx context.Context, ids []int64, ownerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id IN ? AND owner_id = ?", ids, ownerID).
		Delete(&model.Link{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to bulk delete links")
	}
	return res.RowsAffected, nil
}

// CreateVisit records a single redirect hit for analytics
func (r *LinkRepository) CreateVisit(ctx context.Context, visit *model.Visit) error {
	if err := r.db.WithContext(ctx).Create(visit).Error; err != nil {
		return errors.Wrap(err, "failed to create visit record")
	}
	return nil
}

// GetAllShortCodes retrieves every short code, used to warm the bloom filter.
func (r *LinkRepository) GetAllShortCodes(ctx context.Context) ([]string, error) {
	var shortCodes []string
	if err := r.db.WithContext(ctx).Model(&model.Link{}).
		Pluck("short_code", &shortCodes).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get all short codes")
	}
	return shortCodes, nil
}

// Close closes the database connection
func (r *LinkRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
