package booking

import (
	"github.com/tripfolio/financeos/internal/booking/repository"
	"github.com/tripfolio/financeos/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
