package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/clients/llm"
	"github.com/courseforge/courseforge-backend/internal/clients/redis"
	"github.com/courseforge/courseforge-backend/internal/clients/retrieval"
	"github.com/courseforge/courseforge-backend/internal/data/db"
	"github.com/courseforge/courseforge-backend/internal/generation/assemble"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
	"github.com/courseforge/courseforge-backend/internal/handlers"
	"github.com/courseforge/courseforge-backend/internal/jobs/pipeline/content_analyze"
	"github.com/courseforge/courseforge-backend/internal/jobs/pipeline/course_generate"
	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/jobs/worker"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/server"
	"github.com/courseforge/courseforge-backend/internal/services"
)

type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Router *gin.Engine
	Cfg    Config

	JobWorker *worker.Worker
	EventBus  redis.EventBus

	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	// Repos
	courseRepo := repos.NewCourseRepo(theDB, log)
	sessionRepo := repos.NewCourseSessionRepo(theDB, log)
	assessmentRepo := repos.NewAssessmentRepo(theDB, log)
	resourceRepo := repos.NewSourceResourceRepo(theDB, log)
	jobRepo := repos.NewGenerationJobRepo(theDB, log)

	// Clients
	llmCfg, err := llm.ConfigFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	cache, err := llm.NewLRUCache(cfg.CacheSize)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init completion cache: %w", err)
	}
	ai, err := llm.NewClient(log, llmCfg, cache)
	if err != nil {
		log.Sync()
		return nil, err
	}

	var retriever retrieval.Client
	if os.Getenv("RETRIEVAL_BASE_URL") != "" {
		retriever, err = retrieval.NewClient(log)
		if err != nil {
			log.Sync()
			return nil, err
		}
	} else {
		log.Warn("RETRIEVAL_BASE_URL not set; generation runs without retrieval context")
	}

	var bus redis.EventBus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = redis.NewEventBus(log)
		if err != nil {
			log.Sync()
			return nil, err
		}
	} else {
		log.Warn("REDIS_ADDR not set; job events are not published")
	}

	// Generation stack
	registry, err := prompts.NewRegistry(cfg.PromptFile)
	if err != nil {
		log.Sync()
		return nil, err
	}
	assembler := assemble.New(log, retriever, assemble.Options{})

	notifier := services.NewJobNotifier(log, bus)

	pipeline := course_generate.NewPipeline(
		theDB, log,
		courseRepo, sessionRepo, assessmentRepo, resourceRepo,
		ai, registry, assembler,
		cfg.Tuning,
	)

	jobRegistry := runtime.NewRegistry()
	if err := jobRegistry.Register(pipeline); err != nil {
		log.Sync()
		return nil, err
	}
	if err := jobRegistry.Register(course_generate.Regenerate{Pipeline: pipeline}); err != nil {
		log.Sync()
		return nil, err
	}
	if err := jobRegistry.Register(content_analyze.NewPipeline(log, resourceRepo, cfg.Tuning.MinQualityScore)); err != nil {
		log.Sync()
		return nil, err
	}

	jobWorker := worker.NewWorker(theDB, log, jobRepo, jobRegistry, notifier, cfg.Worker)

	// HTTP
	genService := services.NewCourseGenerationService(theDB, log, courseRepo, sessionRepo, assessmentRepo, jobRepo, notifier)
	router := server.NewRouter(server.RouterConfig{
		AllowOrigins:     cfg.AllowOrigins,
		CourseGenHandler: handlers.NewCourseGenHandler(genService),
	})

	return &App{
		Log:       log,
		DB:        theDB,
		Router:    router,
		Cfg:       cfg,
		JobWorker: jobWorker,
		EventBus:  bus,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.JobWorker.Start(ctx)
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.EventBus != nil {
		_ = a.EventBus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
