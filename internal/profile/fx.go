package profile

import (
	"github.com/wunderling/tutorledger/internal/cache"
	"github.com/wunderling/tutorledger/internal/profile/repository"
	"github.com/wunderling/tutorledger/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(cache.NewProfileResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
