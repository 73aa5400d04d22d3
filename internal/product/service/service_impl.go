package service

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/fjordmetrics/revrec/internal/config"
	productdomain "github.com/fjordmetrics/revrec/internal/product/domain"
	"github.com/fjordmetrics/revrec/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	repo     repository.Repository[productdomain.Periodization]
	products *config.ProductsConfigHolder

	// snapshot holds map[string]productdomain.Periodization keyed by
	// normalized product name. Replaced whole on Reload.
	snapshot atomic.Value
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Products *config.ProductsConfigHolder
}

func NewService(p ServiceParam) productdomain.Service {
	s := &Service{
		db:  p.DB,
		log: p.Log.Named("product.service"),

		repo:     repository.ProvideStore[productdomain.Periodization](p.DB),
		products: p.Products,
	}
	s.snapshot.Store(map[string]productdomain.Periodization{})
	return s
}

func (s *Service) Months(productName string) (int, bool) {
	entry, ok := s.lookup(productName)
	if !ok {
		return 0, false
	}
	return entry.PeriodMonths, true
}

func (s *Service) Category(productName string) string {
	entry, ok := s.lookup(productName)
	if !ok {
		return ""
	}
	return entry.Category
}

func (s *Service) Recurring(productName string) bool {
	entry, ok := s.lookup(productName)
	if !ok {
		return true
	}
	return entry.Recurring
}

func (s *Service) lookup(productName string) (productdomain.Periodization, bool) {
	key := normalize(productName)
	if key == "" {
		return productdomain.Periodization{}, false
	}
	m := s.snapshot.Load().(map[string]productdomain.Periodization)
	entry, ok := m[key]
	return entry, ok
}

func (s *Service) List(ctx context.Context) ([]productdomain.Periodization, error) {
	rows, err := s.repo.Find(ctx, &productdomain.Periodization{})
	if err != nil {
		return nil, err
	}
	out := make([]productdomain.Periodization, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// Upsert writes a manual periodization entry. Manual entries survive config
// reseeds and take precedence over file-sourced rows.
func (s *Service) Upsert(ctx context.Context, entry productdomain.Periodization) (*productdomain.Periodization, error) {
	entry.ProductName = normalize(entry.ProductName)
	if entry.PeriodMonths < 1 {
		entry.PeriodMonths = 1
	}
	entry.Manual = true

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "period_months", "recurring", "manual", "updated_at",
		}),
	}).Create(&entry).Error
	if err != nil {
		return nil, err
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Reload reseeds the table from the products file and rebuilds the in-memory
// snapshot. File rows never overwrite manual entries.
func (s *Service) Reload(ctx context.Context) error {
	cfg := s.products.Get()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range cfg.Products {
			row := productdomain.Periodization{
				ProductName:  normalize(p.ProductName),
				Category:     p.Category,
				PeriodMonths: p.PeriodMonths,
				Recurring:    p.Recurring,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "product_name"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"category":      row.Category,
					"period_months": row.PeriodMonths,
					"recurring":     row.Recurring,
				}),
				Where: clause.Where{Exprs: []clause.Expression{
					clause.Eq{Column: clause.Column{Table: "product_periodizations", Name: "manual"}, Value: false},
				}},
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	rows, err := s.repo.Find(ctx, &productdomain.Periodization{})
	if err != nil {
		return err
	}
	m := make(map[string]productdomain.Periodization, len(rows))
	for _, r := range rows {
		m[r.ProductName] = *r
	}
	s.snapshot.Store(m)

	s.log.Info("periodization snapshot rebuilt", zap.Int("entries", len(m)))
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
