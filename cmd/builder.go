package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"entityservice/api"
	"entityservice/api/entity"
	"entityservice/api/health"
	"entityservice/application/entityservice"
	"entityservice/application/paginator"
	"entityservice/config"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
	"entityservice/infrastructure/persistence/memory"
	"entityservice/infrastructure/persistence/mongodb"
	"entityservice/infrastructure/persistence/mysql"
	"entityservice/infrastructure/persistence/retry"
	"entityservice/pkg/logger"
)

// Model a storable entity type: a struct whose pointer is an entity, with
// gorm tags for mysql and bson tags (id under "_id") for mongodb.
type Model[T any] interface {
	*T
	shared.Entity
}

// entityRegistration registers one entity with whichever backend is configured.
type entityRegistration struct {
	name      string
	expose    bool
	newEntity entity.NewFunc
	memory    func(reg *repository.Registry) error
	mysql     func(f *mysql.RepositoryFactory)
	mongodb   func(f *mongodb.RepositoryFactory)
}

type entityOptions struct {
	collection string
	internal   bool
	seed       []shared.Entity
}

// EntityOption customizes RegisterEntity
type EntityOption func(*entityOptions)

// WithCollection MongoDB collection of the entity; defaults to its name.
func WithCollection(name string) EntityOption {
	return func(o *entityOptions) { o.collection = name }
}

// Internal keeps the entity off the HTTP API.
func Internal() EntityOption {
	return func(o *entityOptions) { o.internal = true }
}

// WithSeed initial content of the in-memory repository.
func WithSeed(entities ...shared.Entity) EntityOption {
	return func(o *entityOptions) { o.seed = append(o.seed, entities...) }
}

// AppBuilder builds an App with customizable components
type AppBuilder struct {
	cfg          *config.Config
	log          *zap.Logger
	entities     []entityRegistration
	controllers  []api.ControllerRegister
	middlewares  []api.MiddlewareRegister
	customRoutes []api.Route
	initializers []entityservice.Initializer
	factories    []ControllerFactory
}

// ControllerFactory builds a controller once the entity services exist.
type ControllerFactory func(m *entityservice.Manager) (api.ControllerRegister, error)

func NewBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// RegisterEntity makes T available as entity name on every backend.
func RegisterEntity[T any, PT Model[T]](b *AppBuilder, name string, opts ...EntityOption) *AppBuilder {
	o := &entityOptions{collection: name}
	for _, opt := range opts {
		opt(o)
	}

	b.entities = append(b.entities, entityRegistration{
		name:      name,
		expose:    !o.internal,
		newEntity: func() shared.Entity { return PT(new(T)) },
		memory: func(reg *repository.Registry) error {
			return reg.Register(name, memory.NewCollectionRepository(name, o.seed...))
		},
		mysql: func(f *mysql.RepositoryFactory) {
			mysql.Register[T, PT](f, name)
		},
		mongodb: func(f *mongodb.RepositoryFactory) {
			mongodb.Register[T, PT](f, name, o.collection)
		},
	})
	return b
}

// WithLogger uses l instead of initializing the global logger from config.
func (b *AppBuilder) WithLogger(l *zap.Logger) *AppBuilder {
	b.log = l
	return b
}

func (b *AppBuilder) WithController(c api.ControllerRegister) *AppBuilder {
	b.controllers = append(b.controllers, c)
	return b
}

func (b *AppBuilder) WithMiddleware(m api.MiddlewareRegister) *AppBuilder {
	b.middlewares = append(b.middlewares, m)
	return b
}

func (b *AppBuilder) WithRoute(method, path string, handler gin.HandlerFunc) *AppBuilder {
	b.customRoutes = append(b.customRoutes, api.Route{Method: method, Path: path, Handler: handler})
	return b
}

// WithControllerFactory adds the controller f builds from the service manager.
func (b *AppBuilder) WithControllerFactory(f ControllerFactory) *AppBuilder {
	b.factories = append(b.factories, f)
	return b
}

// WithInitializer runs i on every entity service the manager creates.
func (b *AppBuilder) WithInitializer(i entityservice.Initializer) *AppBuilder {
	b.initializers = append(b.initializers, i)
	return b
}

// Build connects the configured backend and assembles the App.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.log != nil {
		logger.SetLogger(b.log)
	} else if err := logger.Init(&b.cfg.Log, b.cfg.App.Env); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting application",
		zap.String("app", b.cfg.App.Name),
		zap.String("version", b.cfg.App.Version),
		zap.String("env", b.cfg.App.Env),
		zap.String("database", b.cfg.Database.Type))

	app := &App{config: b.cfg, registry: repository.NewRegistry()}
	checks, err := b.initBackend(ctx, app)
	if err != nil {
		_ = app.Shutdown(ctx)
		return nil, err
	}

	initializers := append([]entityservice.Initializer{
		entityservice.LoggingInitializer(logger.Get().Named("entityservice")),
	}, b.initializers...)
	app.manager = entityservice.NewManager(app.registry, logger.Get(), initializers...)

	entities := entity.NewController(app.manager, paginator.Config{
		DefaultPageSize: b.cfg.Paginator.DefaultPageSize,
		MaxPageSize:     b.cfg.Paginator.MaxPageSize,
	})
	for _, e := range b.entities {
		if e.expose {
			entities.Expose(e.name, e.newEntity)
		}
	}

	controllers := append([]api.ControllerRegister{
		health.NewController(b.cfg, checks),
		entities,
	}, b.controllers...)
	for _, f := range b.factories {
		c, err := f(app.manager)
		if err != nil {
			_ = app.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create controller: %w", err)
		}
		controllers = append(controllers, c)
	}

	app.router = api.NewRouter(b.cfg, controllers, b.middlewares, b.customRoutes)
	app.router.SetupRoutes()

	app.server = &http.Server{
		Addr:         ":" + b.cfg.Server.Port,
		Handler:      app.router.GetEngine(),
		ReadTimeout:  b.cfg.Server.ReadTimeout,
		WriteTimeout: b.cfg.Server.WriteTimeout,
	}
	return app, nil
}

func (b *AppBuilder) initBackend(ctx context.Context, app *App) (map[string]health.Checker, error) {
	switch b.cfg.Database.Type {
	case config.DatabaseMySQL:
		return b.initMySQL(ctx, app)
	case config.DatabaseMongoDB:
		return b.initMongoDB(ctx, app)
	case config.DatabaseMemory, "":
		logger.Info("Using in-memory persistence layer")
		for _, e := range b.entities {
			if err := e.memory(app.registry); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown database type %q", b.cfg.Database.Type)
}

func (b *AppBuilder) initMySQL(ctx context.Context, app *App) (map[string]health.Checker, error) {
	logger.Info("Using MySQL/GORM persistence layer")

	mysqlConfig := mysql.FromAppConfig(b.cfg.Database)
	db, err := mysqlConfig.Connect(ctx)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return sqlDB.Close() })

	factory := mysql.NewRepositoryFactory(mysql.NewSession(db, mysql.WithRetry(mysqlConfig.Retry)))
	for _, e := range b.entities {
		e.mysql(factory)
	}
	if b.cfg.Database.AutoMigrate {
		if err := factory.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
		logger.Info("Database schema migrated", zap.Strings("entities", factory.Names()))
	}
	app.registry.AddAbstractFactory(factory)

	return map[string]health.Checker{"database": sqlDB.PingContext}, nil
}

func (b *AppBuilder) initMongoDB(ctx context.Context, app *App) (map[string]health.Checker, error) {
	logger.Info("Using MongoDB persistence layer")

	client, err := mongodb.Connect(ctx, b.cfg.Mongo, retry.FromAppConfig(b.cfg.Database.Retry))
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Disconnect)

	factory := mongodb.NewRepositoryFactory(client.Database(b.cfg.Mongo.Database),
		mongodb.WithLogger(logger.Get()))
	for _, e := range b.entities {
		e.mongodb(factory)
	}
	app.registry.AddAbstractFactory(factory)

	return map[string]health.Checker{
		"mongodb": func(ctx context.Context) error { return client.Ping(ctx, nil) },
	}, nil
}
