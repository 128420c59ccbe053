package migration

import (
	"github.com/wunderling/tutorledger/internal/config"
	ledgerdomain "github.com/wunderling/tutorledger/internal/ledger/domain"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	"github.com/wunderling/tutorledger/internal/seed"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureDefaults(conn)
		}

		// sqlite and mysql run from the models; versioned SQL is kept
		// postgres-only.
		if err := conn.AutoMigrate(
			&sessiondomain.Session{},
			&profiledomain.BillingProfile{},
			&settingsdomain.Settings{},
			&ledgerdomain.Token{},
			&postingdomain.PostingRun{},
		); err != nil {
			return err
		}
		return seed.EnsureDefaults(conn)
	}),
)
