package session

import (
	"github.com/wunderling/tutorledger/internal/session/repository"
	"github.com/wunderling/tutorledger/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
