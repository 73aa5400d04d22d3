package product

import (
	"context"

	productdomain "github.com/fjordmetrics/revrec/internal/product/domain"
	"github.com/fjordmetrics/revrec/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(service.NewService),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, svc productdomain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Reload(ctx)
		},
	})
}
