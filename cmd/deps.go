package cmd

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/bridge"
	"example.com/backstage/services/clinops/cache"
	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/handlers"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/projections"
	"example.com/backstage/services/clinops/readstore"
	"example.com/backstage/services/clinops/service"
	"example.com/backstage/services/clinops/tracing"
	"example.com/backstage/services/clinops/waiter"
)

// components is everything a process needs, built once from config
type components struct {
	db         *gorm.DB
	events     *eventstore.GormEventStore
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	cache      *cache.RedisCache
	processor  *projections.EventProcessor
	reconciler *projections.Reconciler
	service    *service.Service
}

func openDatabase(c config.DatabaseConfig) (*gorm.DB, error) {
	db, err := models.Open(c.Driver, c.Source)
	if err != nil {
		return nil, err
	}

	if c.Driver != "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get underlying DB connection")
		}
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if c.AutoMigrate {
		if err := models.AutoMigrate(db); err != nil {
			return nil, errors.Wrap(err, "failed to run migrations")
		}
	}
	return db, nil
}

// build wires the stack. notify controls whether commands wake the local
// projection processor.
func build(cfg config.Config, notify bool) (*components, error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	registry, err := lifecycle.DefaultRegistry()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build lifecycle registry")
	}

	m := metrics.NewMetrics()

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	var search *projections.SearchIndexer
	if cfg.Elasticsearch.Enabled {
		client, err := projections.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := projections.EnsureIndices(client, cfg.Elasticsearch); err != nil {
			return nil, err
		}
		search = projections.NewSearchIndexer(client, cfg.Elasticsearch)
	}

	events := eventstore.NewGormEventStore(db)
	projector := projections.NewProjector(db, events, search)
	processor := projections.NewEventProcessor(events, projector, cfg.Projection,
		projections.WithTracer(tracer),
		projections.WithMetrics(m),
	)

	opts := []handlers.Option{
		handlers.WithTracer(tracer),
		handlers.WithMetrics(m),
		handlers.WithTimeout(cfg.Dispatch.Timeout),
	}
	if notify {
		opts = append(opts, handlers.WithNotifier(processor.Notify))
	}
	dispatcher := handlers.NewDispatcher(events, registry, opts...)

	reads := readstore.NewStore(db)
	b, err := bridge.New(events, reads, dispatcher, cfg.Bridge,
		bridge.WithCache(redisCache),
		bridge.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	w := waiter.New(cfg.Waiter, waiter.WithMetrics(m))

	return &components{
		db:         db,
		events:     events,
		metrics:    m,
		tracer:     tracer,
		cache:      redisCache,
		processor:  processor,
		reconciler: projections.NewReconciler(events, processor, m, cfg.Projection.StuckAfter),
		service:    service.New(registry, dispatcher, events, b, reads, w),
	}, nil
}

func (c *components) close() {
	if err := c.cache.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Redis cache")
	}
	c.tracer.Close()
	if sqlDB, err := c.db.DB(); err == nil {
		sqlDB.Close()
	}
}
