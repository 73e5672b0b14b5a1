package owners

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidOwner indicates an empty owner identifier.
var ErrInvalidOwner = errors.New("owners: invalid owner id")

// ServiceConfig describes the dependencies of the owner registry.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service keeps the registry of teacher accounts seen by the backend. It is
// advisory bookkeeping: reconciliation never depends on a row existing here.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the owner registry service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("owners: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock, cache: sync.Map{}}, nil
}

// Touch records that the owner was active, creating the row on first sight.
func (s *Service) Touch(ownerID, displayName string) error {
	ownerID = normalize(ownerID)
	if ownerID == "" {
		return ErrInvalidOwner
	}

	if _, seen := s.cache.Load(ownerID); seen {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if name := normalize(displayName); name != "" {
			updates["display_name"] = name
		}
		return s.db.Model(&Owner{}).Where("owner_id = ?", ownerID).Updates(updates).Error
	}

	var owner Owner
	err := s.db.Where("owner_id = ?", ownerID).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		owner = Owner{
			OwnerID:     ownerID,
			DisplayName: normalize(displayName),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&owner).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if name := normalize(displayName); name != "" && name != owner.DisplayName {
			updates["display_name"] = name
		}
		if err := s.db.Model(&Owner{}).Where("owner_id = ?", ownerID).Updates(updates).Error; err != nil {
			return err
		}
	}

	s.cache.Store(ownerID, struct{}{})
	return nil
}
