package database

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

const migrationRepairBehaviorCategories = "2026-07-14_repair_behavior_categories"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairBehaviorCategories, apply: repairBehaviorCategories},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairBehaviorCategories rewrites stored behavior records whose category
// disagrees with the sign of their points. Early clients persisted whatever
// category the UI carried at the time, so a card edited from reward to
// penalty could keep its old category.
func repairBehaviorCategories(db *gorm.DB) error {
	var rows []store.StoredRecord
	if err := db.Where("collection = ?", store.CollectionBehaviors).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		var fields map[string]any
		if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
			continue
		}
		points := 0
		switch value := fields["points"].(type) {
		case float64:
			points = int(value)
		case json.Number:
			parsed, err := value.Int64()
			if err == nil {
				points = int(parsed)
			}
		}
		derived := classroom.BehaviorCard{Points: points}.DerivedCategory()
		if current, _ := fields["category"].(string); current == derived {
			continue
		}
		fields["category"] = derived
		encoded, err := json.Marshal(fields)
		if err != nil {
			continue
		}
		err = db.Model(&store.StoredRecord{}).
			Where("collection = ? AND record_id = ?", row.Collection, row.RecordID).
			Update("fields_json", string(encoded)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
