package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/vgrab-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// filterColumns maps accepted FindAll filter keys to columns
var filterColumns = map[string]string{
	"state":   "state",
	"quality": "quality",
	"source":  "source",
}

// SQLiteJobRepository implements JobRepository using SQLite
type SQLiteJobRepository struct {
	db *gorm.DB
}

// NewSQLiteJobRepository opens (and migrates) the job history database
func NewSQLiteJobRepository(dbPath string) (*SQLiteJobRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Job observers write from their own goroutines; one connection avoids SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Create stores a new job record
func (r *SQLiteJobRepository) Create(record *domain.JobRecord) error {
	return r.db.Create(record).Error
}

// Update updates an existing job record
func (r *SQLiteJobRepository) Update(record *domain.JobRecord) error {
	return r.db.Save(record).Error
}

// Delete deletes a job record by ID
func (r *SQLiteJobRepository) Delete(id string) error {
	return r.db.Delete(&domain.JobRecord{}, "id = ?", id).Error
}

// FindByID finds a job record by ID
func (r *SQLiteJobRepository) FindByID(id string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

// FindByState finds job records in the given state, oldest first
func (r *SQLiteJobRepository) FindByState(state domain.JobState) ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	err := r.db.Where("state = ?", state).Order("created_at ASC").Find(&records).Error
	return records, err
}

// FindAll finds all job records with optional filters, newest first.
// Accepted filters are state, quality, source and limit.
func (r *SQLiteJobRepository) FindAll(filters map[string]interface{}) ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	query := r.db

	for key, value := range filters {
		if key == "limit" {
			if n, ok := value.(int); ok && n > 0 {
				query = query.Limit(n)
			}
			continue
		}
		column, ok := filterColumns[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter %q", domain.ErrInvalidRequest, key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", column), value)
	}

	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

// Count returns the total number of job records
func (r *SQLiteJobRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.JobRecord{}).Count(&count).Error
	return count, err
}

// GetStats returns job statistics
func (r *SQLiteJobRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	if err := r.db.Model(&domain.JobRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.JobState
		Count int64
	}{}

	if err := r.db.Model(&domain.JobRecord{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StatePending:
			stats.Pending = sc.Count
		case domain.StateRunning:
			stats.Running = sc.Count
		case domain.StateSucceeded:
			stats.Succeeded = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
