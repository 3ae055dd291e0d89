package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/hh-screener/internal/analysis"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/syncer"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync vacancies and responses, then analyze every pending candidate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, run)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// session is what a command body works with.
type session struct {
	logger *zap.Logger
	config *Config
	deps   *deps
}

// withSession builds the logger, config and dependencies, runs body with a
// context cancelled on SIGINT/SIGTERM and releases everything afterwards.
func withSession(cmd *cobra.Command, body func(context.Context, *cobra.Command, *session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer func() { _ = logger.Sync() }()

	config, err := getConfig()
	if err != nil {
		logger.Error("getting a config", zap.Error(err))
		return err
	}

	logger.Info("starting the "+app, zap.String("version", version), zap.String("command", cmd.Name()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	d, err := newDeps(ctx, config, logger)
	if err != nil {
		logger.Error("preparing dependencies", zap.Error(err))
		return err
	}
	defer d.close()

	if err := body(ctx, cmd, &session{logger: logger, config: config, deps: d}); err != nil {
		logger.Error("exiting", zap.Error(err))
		return err
	}
	return nil
}

func redacted(config *Config) Config {
	c := *config
	if c.Token != "" {
		c.Token = "***"
	}
	if c.AI.APIKey != "" {
		c.AI.APIKey = "***"
	}
	return c
}

// run is the main command for the cli.
func run(ctx context.Context, _ *cobra.Command, s *session) error {
	userID, err := s.deps.userID(ctx)
	if err != nil {
		return err
	}

	job, err := startSync(ctx, s, syncer.Request{UserID: userID, SyncVacancies: true, SyncApplications: true})
	if err != nil {
		return err
	}
	logJob(s.logger, job)

	coordinator, err := s.deps.coordinator(ctx)
	if err != nil {
		return fmt.Errorf("building analysis: %w", err)
	}

	vacancies, err := s.deps.store.ListVacancies(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("list vacancies: %w", err)
	}

	total := &analysis.Report{}
	for _, vacancy := range vacancies {
		if vacancy.UnanalyzedCount == 0 {
			continue
		}

		report, err := coordinator.AnalyzeVacancy(ctx, vacancy.ID)
		total.Merge(report)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.logger.Warn("interrupted", zap.Int("analyzed", total.Succeeded))
				return err
			}
			s.logger.Error("analyzing vacancy",
				zap.String("vacancy_id", vacancy.ID.String()),
				zap.String("title", vacancy.Title),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("vacancy analyzed",
			zap.String("vacancy_id", vacancy.ID.String()),
			zap.String("title", vacancy.Title),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}

	logReport(s.logger, total)
	return nil
}

func logReport(log *zap.Logger, report *analysis.Report) {
	log.Info("analysis finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cached", report.Cached),
	)
	for _, msg := range report.Errors {
		log.Warn("candidate failed", zap.String("error", msg))
	}
}
