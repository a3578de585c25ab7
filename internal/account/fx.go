package account

import (
	"github.com/tripfolio/financeos/internal/account/repository"
	"github.com/tripfolio/financeos/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
