package model

import (
	"time"

	"github.com/google/uuid"
)

// Link represents a short code mapped to a destination URL
type Link struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	ShortCode   string     `gorm:"uniqueIndex;type:varchar(10);not null" json:"short_code"`
	OriginalURL string     `gorm:"type:varchar(2048);not null;index" json:"original_url"`
	OwnerID     *uuid.UUID `gorm:"type:varchar(36);index" json:"owner_id,omitempty"`
	VisitCount  uint64     `gorm:"not null;default:0" json:"visit_count"`
	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	IsFlagged   bool       `gorm:"not null;default:false" json:"is_flagged"`
	FlagReason  string     `gorm:"type:varchar(255)" json:"flag_reason,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Link
func (Link) TableName() string {
	return "links"
}

// OwnedBy reports whether the link belongs to the given user.
func (l *Link) OwnedBy(userID uuid.UUID) bool {
	return l.OwnerID != nil && *l.OwnerID == userID
}

// Visit represents a single redirect hit, kept for analytics
type Visit struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkID    int64     `gorm:"index;not null" json:"link_id"`
	ShortCode string    `gorm:"index;type:varchar(10);not null" json:"short_code"`
	VisitedAt time.Time `gorm:"autoCreateTime;index" json:"visited_at"`
	IP        string    `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent string    `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
}

// TableName specifies the table name for Visit
func (Visit) TableName() string {
	return "visits"
}
