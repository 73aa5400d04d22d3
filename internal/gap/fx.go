package gap

import (
	"github.com/fjordmetrics/revrec/internal/gap/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gap.service",
	fx.Provide(service.NewService),
)
