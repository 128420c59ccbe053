package ledger

import (
	"github.com/wunderling/tutorledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.client",
	fx.Provide(service.NewTokenStore),
	fx.Provide(service.New),
)
