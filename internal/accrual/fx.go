package accrual

import (
	"github.com/tripfolio/financeos/internal/accrual/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accrual.service",
	fx.Provide(service.NewService),
)
