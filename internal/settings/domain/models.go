package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRequest = errors.New("invalid_settings_request")

// Settings is the single operational configuration row. Keyword filters
// are legacy: ingestion no longer filters on them, but they stay editable
// so older automations keep their configuration.
type Settings struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Keyword1  string `gorm:"column:keyword_1" json:"keyword_1,omitempty"`
	Keyword2  string `gorm:"column:keyword_2" json:"keyword_2,omitempty"`
	ItemRef50 string `gorm:"column:item_ref_50" json:"item_ref_50"`
	ItemRef90 string `gorm:"column:item_ref_90" json:"item_ref_90"`

	Timezone       string `gorm:"default:America/Los_Angeles" json:"timezone"`
	WeeklyPostDay  int    `gorm:"column:weekly_post_day;default:5" json:"weekly_post_day"`
	WeeklyPostHour int    `gorm:"column:weekly_post_hour;default:18" json:"weekly_post_hour"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Settings) TableName() string { return "settings" }

// UpdateRequest carries a settings edit. Nil fields are left unchanged.
type UpdateRequest struct {
	Keyword1       *string `json:"keyword_1"`
	Keyword2       *string `json:"keyword_2"`
	ItemRef50      *string `json:"item_ref_50"`
	ItemRef90      *string `json:"item_ref_90"`
	Timezone       *string `json:"timezone"`
	WeeklyPostDay  *int    `json:"weekly_post_day"`
	WeeklyPostHour *int    `json:"weekly_post_hour"`
}

type Service interface {
	// Get returns the settings row, creating defaults on first use.
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, req UpdateRequest) (Settings, error)
}
