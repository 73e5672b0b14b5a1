package owners

import (
	"strings"
	"time"
)

// Owner is one teacher account partitioning class records in the store.
type Owner struct {
	OwnerID     string    `gorm:"column:owner_id;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing owner accounts.
func (Owner) TableName() string {
	return "owners"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
