package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StoredRecord is the gorm model backing the local record store. Fields are
// kept as a JSON text blob, mirroring the flat-field contract of the hosted
// records API.
type StoredRecord struct {
	Collection       string `gorm:"column:collection;primaryKey;size:64;not null"`
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	FieldsJSON       string `gorm:"column:fields_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredRecord) TableName() string {
	return "records"
}

// IDProvider mints identifiers for newly created records.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// SQLiteStoreConfig describes the dependencies of the local record store.
type SQLiteStoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// SQLiteStore implements RecordStore on a local SQLite database. It is meant
// for self-hosted and development deployments; filters are evaluated in
// memory after decoding, which is fine at classroom scale.
type SQLiteStore struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewSQLiteStore validates dependencies and constructs a SQLiteStore.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// List returns every record in the collection matching the filter, oldest
// first, bounded by PageSize.
func (s *SQLiteStore) List(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var rows []StoredRecord
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("created_at_s ASC").
		Limit(PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", collection, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		record := Record{ID: row.RecordID, Fields: s.decodeFields(collection, row)}
		if !filter.Matches(record) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Create stores a new record and returns it with its bound identifier.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}

	recordID, err := s.idProvider.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("store: create %s: %w", collection, err)
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("store: create %s: %w", collection, err)
	}

	now := s.clock().UTC().Unix()
	row := StoredRecord{
		Collection:       collection,
		RecordID:         recordID,
		FieldsJSON:       string(encoded),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Record{}, fmt.Errorf("store: create %s: %w", collection, err)
	}
	return Record{ID: recordID, Fields: fields}, nil
}

// Update replaces the field set of an existing record.
func (s *SQLiteStore) Update(ctx context.Context, collection string, recordID string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateRecordID(recordID); err != nil {
		return Record{}, err
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("store: update %s/%s: %w", collection, recordID, err)
	}

	result := s.db.WithContext(ctx).
		Model(&StoredRecord{}).
		Where("collection = ? AND record_id = ?", collection, recordID).
		Updates(map[string]any{
			"fields_json":  string(encoded),
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return Record{}, fmt.Errorf("store: update %s/%s: %w", collection, recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return Record{}, fmt.Errorf("store: update %s/%s: %w", collection, recordID, ErrRecordNotFound)
	}
	return Record{ID: recordID, Fields: fields}, nil
}

// Delete removes a record. Deleting a missing record is an error so callers
// can distinguish a vanished record from a successful sweep.
func (s *SQLiteStore) Delete(ctx context.Context, collection string, recordID string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateRecordID(recordID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("collection = ? AND record_id = ?", collection, recordID).
		Delete(&StoredRecord{})
	if result.Error != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: delete %s/%s: %w", collection, recordID, ErrRecordNotFound)
	}
	return nil
}

func (s *SQLiteStore) decodeFields(collection string, row StoredRecord) Fields {
	fields := Fields{}
	if row.FieldsJSON == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
		s.logger.Warn("stored record fields unreadable",
			zap.String("collection", collection),
			zap.String("record_id", row.RecordID),
			zap.Error(err))
		return Fields{}
	}
	return fields
}
