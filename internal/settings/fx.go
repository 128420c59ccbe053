package settings

import (
	"github.com/wunderling/tutorledger/internal/settings/repository"
	"github.com/wunderling/tutorledger/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
