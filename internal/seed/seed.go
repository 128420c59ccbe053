package seed

import (
	"context"
	"errors"
	"time"

	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"gorm.io/gorm"
)

const (
	defaultTimezone = "America/Los_Angeles"
	defaultPostDay  = int(time.Friday)
	defaultPostHour = 18
)

// EnsureDefaults seeds the settings singleton for startup bootstrap, so
// the first webhook never races the row into existence.
func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ensureSettingsTx(ctx, tx)
	})
}

func ensureSettingsTx(ctx context.Context, tx *gorm.DB) error {
	var settings settingsdomain.Settings
	err := tx.WithContext(ctx).First(&settings, "id = ?", 1).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	settings = settingsdomain.Settings{
		ID:             1,
		Timezone:       defaultTimezone,
		WeeklyPostDay:  defaultPostDay,
		WeeklyPostHour: defaultPostHour,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return tx.WithContext(ctx).Create(&settings).Error
}
