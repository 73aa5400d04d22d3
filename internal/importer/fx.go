package importer

import (
	"github.com/fjordmetrics/revrec/internal/importer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("importer.service",
	fx.Provide(service.NewService),
)
