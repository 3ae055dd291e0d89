package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/ai/gemini"
	"github.com/spigell/hh-screener/internal/analysis"
	"github.com/spigell/hh-screener/internal/cache"
	"github.com/spigell/hh-screener/internal/dedup"
	"github.com/spigell/hh-screener/internal/headhunter"
	"github.com/spigell/hh-screener/internal/jobs"
	"github.com/spigell/hh-screener/internal/secrets"
	"github.com/spigell/hh-screener/internal/store"
	"github.com/spigell/hh-screener/internal/store/memstore"
	"github.com/spigell/hh-screener/internal/syncer"
	"go.uber.org/zap"
)

// userNamespace scopes user ids derived from hh.ru employer ids.
var userNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hh.ru/employer"))

// deps holds everything a command needs. Build it with newDeps and release it with close.
type deps struct {
	config *Config
	logger *zap.Logger

	store  store.Store
	cache  cache.Cache
	runner *jobs.Runner

	hh       *headhunter.Client
	detector *dedup.Detector

	closers []func()
}

func newDeps(ctx context.Context, config *Config, log *zap.Logger) (*deps, error) {
	d := &deps{
		config: config,
		logger: log,
		runner: jobs.NewRunner(log),
	}

	if err := d.openStore(ctx); err != nil {
		d.close()
		return nil, err
	}
	d.openCache(ctx)
	d.detector = dedup.NewDetector(d.store, log.Named("dedup"))

	return d, nil
}

func (d *deps) openStore(ctx context.Context) error {
	if d.config.InMemory {
		d.logger.Warn("using in-memory store, nothing will be persisted")
		d.store = memstore.New()
		return nil
	}

	if d.config.Database.AutoMigrate {
		v, err := store.RunMigrations(d.config.Database.URL)
		if err != nil {
			return err
		}
		d.logger.Info("database migrated", zap.Uint("version", v))
	}

	pool, err := store.Connect(ctx, d.config.Database.DatabaseConfig)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, pool.Close)
	d.store = store.NewPostgresStore(pool)
	return nil
}

// openCache never fails: the cache is advisory and a broken Redis only costs model calls.
func (d *deps) openCache(ctx context.Context) {
	d.cache = cache.Nop{}

	url := strings.TrimSpace(d.config.Redis.URL)
	if url == "" {
		d.logger.Debug("redis is not configured, analysis cache disabled")
		return
	}

	redisCache, err := cache.NewRedisCache(url)
	if err != nil {
		d.logger.Warn("analysis cache disabled", zap.Error(err))
		return
	}
	if err := redisCache.Ping(ctx); err != nil {
		_ = redisCache.Close()
		d.logger.Warn("analysis cache disabled", zap.String("reason", "redis is unreachable"), zap.Error(err))
		return
	}

	d.closers = append(d.closers, func() { _ = redisCache.Close() })
	d.cache = redisCache
}

func (d *deps) headhunter() (*headhunter.Client, error) {
	if d.hh != nil {
		return d.hh, nil
	}

	token, err := secrets.Load(secrets.Source{
		Name:  "headhunter token",
		File:  d.config.TokenFile,
		Value: d.config.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set HH_TOKEN_FILE or the 'token-file' key in the configuration file)", err)
	}

	d.hh = headhunter.New(d.logger.Named("headhunter"), token, d.config.HeadHunter)
	return d.hh, nil
}

// userID returns the configured owner or derives a stable one from the employer of the token.
func (d *deps) userID(ctx context.Context) (uuid.UUID, error) {
	if id := strings.TrimSpace(d.config.UserID); id != "" {
		return uuid.Parse(id)
	}

	hh, err := d.headhunter()
	if err != nil {
		return uuid.Nil, err
	}
	employerID, err := hh.EmployerID(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve user: %w", err)
	}
	return uuid.NewSHA1(userNamespace, []byte(employerID)), nil
}

func (d *deps) syncer() (*syncer.Orchestrator, error) {
	hh, err := d.headhunter()
	if err != nil {
		return nil, err
	}

	// The CLI acts with a single token, so every user maps to the same client.
	platforms := func(context.Context, uuid.UUID) (syncer.Platform, error) {
		return hh, nil
	}

	return syncer.New(d.store, platforms, d.detector, d.runner, d.logger), nil
}

func (d *deps) coordinator(ctx context.Context) (*analysis.Coordinator, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  d.config.AI.APIKeyFile,
		Value: d.config.AI.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, d.logger.Named("gemini"), apiKey, d.config.AI.Gemini)
	if err != nil {
		return nil, err
	}

	evaluator, err := gemini.NewEvaluator(generator, d.logger.Named("evaluator"), d.config.AI.MaxLogLength)
	if err != nil {
		return nil, err
	}

	engine := analysis.NewEngine(evaluator, d.cache, d.logger, analysis.EngineConfig{
		CacheTTL: d.config.Analysis.CacheTTL,
	})

	return analysis.NewCoordinator(d.store, engine, d.detector, d.runner, d.logger, d.config.Analysis.CoordinatorConfig), nil
}

// findVacancy resolves a vacancy by internal uuid or by hh.ru id.
func (d *deps) findVacancy(ctx context.Context, userID uuid.UUID, ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		if _, err := d.store.GetVacancy(ctx, id); err != nil {
			return uuid.Nil, fmt.Errorf("vacancy %s: %w", ref, err)
		}
		return id, nil
	}

	vacancies, err := d.store.ListVacancies(ctx, userID, false)
	if err != nil {
		return uuid.Nil, err
	}
	for _, vacancy := range vacancies {
		if vacancy.ExternalID == ref {
			return vacancy.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("vacancy %s: %w", ref, errVacancyNotSynced)
}

var errVacancyNotSynced = errors.New("not found, run sync first")

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
