package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pos/internal/storage/postgres"
)

// Dependencies содержит хранилища, от которых зависит терминал.
type Dependencies struct {
	Products  domain.ProductReader
	Stock     domain.StockAdjuster
	Customers domain.CustomerReader
	Sales     domain.SaleRepository
	Outbox    domain.OutboxRepository
	Journal   domain.JournalRepository

	// Store не nil только для драйвера postgres.
	Store  *postgres.Store
	Logger *log.Entry
}

// newDependencies собирает слой персистентности по выбранному драйверу.
func newDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		products := memory.NewProductRepository()
		customers := memory.NewCustomerRepository()
		if cfg.SeedDemoCatalog {
			seedDemoCatalog(products, customers, logger)
		}
		return &Dependencies{
			Products:  products,
			Stock:     products,
			Customers: customers,
			Sales:     memory.NewSaleRepository(products, customers),
			Outbox:    memory.NewOutboxRepository(),
			Journal:   memory.NewJournalRepository(),
			Logger:    logger,
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("storage driver postgres requires POS_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		products := postgres.NewProductRepository(store)
		return &Dependencies{
			Products:  products,
			Stock:     products,
			Customers: postgres.NewCustomerRepository(store),
			Sales:     postgres.NewSaleRepository(store),
			Outbox:    postgres.NewOutboxRepository(store),
			Journal:   postgres.NewJournalRepository(store),
			Store:     store,
			Logger:    logger,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Close освобождает ресурсы слоя персистентности.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

type productSeeder interface {
	Upsert(p domain.ProductSnapshot)
}

type customerSeeder interface {
	Upsert(c domain.CustomerSnapshot)
}

// seedDemoCatalog наполняет memory-хранилище небольшим каталогом, чтобы
// терминал был пригоден для демонстрации сразу после запуска.
func seedDemoCatalog(products productSeeder, customers customerSeeder, logger *log.Entry) {
	demo := []domain.ProductSnapshot{
		{ID: "espresso", UnitPriceMinor: 350, StockQuantity: 200},
		{ID: "latte", UnitPriceMinor: 520, StockQuantity: 150},
		{ID: "croissant", UnitPriceMinor: 410, StockQuantity: 40},
		{ID: "beans-1kg", UnitPriceMinor: 2890, StockQuantity: 25},
	}
	for _, p := range demo {
		products.Upsert(p)
	}

	customers.Upsert(domain.CustomerSnapshot{
		ID:               "cust-regular",
		CreditLimitMinor: 50000,
	})

	logger.WithFields(log.Fields{
		"products":  len(demo),
		"customers": 1,
	}).Info("демо-каталог загружен в memory-хранилище")
}
