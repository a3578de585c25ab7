package audit

import (
	"github.com/tripfolio/financeos/internal/audit/repository"
	"github.com/tripfolio/financeos/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
