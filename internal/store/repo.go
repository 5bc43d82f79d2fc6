package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{})
}

func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&SaveRecord{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

var _ panel.Recorder = (*Repo)(nil)

// RecordSave stores a finished save cycle.
func (r *Repo) RecordSave(ctx context.Context, rec panel.SaveRecord) error {
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return err
	}
	row := &SaveRecord{
		ID:          uuid.New(),
		DeviceID:    rec.DeviceID,
		Variant:     rec.Variant,
		Values:      datatypes.JSON(values),
		Status:      rec.Status,
		Error:       rec.Error,
		StartedAt:   rec.StartedAt.UTC(),
		CompletedAt: rec.CompletedAt.UTC(),
	}
	if row.CompletedAt.IsZero() {
		row.CompletedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// ListSaves returns the most recent saves of a device, newest first.
func (r *Repo) ListSaves(ctx context.Context, deviceID, limit int) ([]SaveRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	var out []SaveRecord
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
