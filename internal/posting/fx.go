package posting

import (
	"github.com/wunderling/tutorledger/internal/posting/repository"
	"github.com/wunderling/tutorledger/internal/posting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("posting.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
