package reconcile

import (
	"github.com/fjordmetrics/revrec/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(service.NewService),
)
