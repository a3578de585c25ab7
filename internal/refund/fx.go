package refund

import (
	"github.com/tripfolio/financeos/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(service.NewService),
)
