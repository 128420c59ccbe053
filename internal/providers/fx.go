package providers

import (
	"github.com/wunderling/tutorledger/internal/providers/email"
	"github.com/wunderling/tutorledger/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(pdf.New),
	fx.Provide(email.NewRunNotifier),
)
