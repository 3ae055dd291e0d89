package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spigell/hh-screener/internal/analysis"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errNotConfirmed = errors.New("re-analysis was not confirmed")

var analyzeCmd = &cobra.Command{
	Use:   "analyze [application ids...]",
	Short: "Analyze the given applications or the pending ones of a vacancy",
	Args: func(cmd *cobra.Command, args []string) error {
		vacancy, _ := cmd.Flags().GetString("vacancy")
		if len(args) == 0 && vacancy == "" {
			return errors.New("pass application ids or --vacancy")
		}
		if len(args) > 0 && vacancy != "" {
			return errors.New("application ids and --vacancy are mutually exclusive")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			return analyze(ctx, cmd, s, args)
		})
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("vacancy", "", "analyze the pending applications of this vacancy (internal uuid or hh.ru id)")
	analyzeCmd.Flags().BoolP("force", "f", false, "re-analyze applications that already have a result")
	analyzeCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before a forced re-analysis")
}

func analyze(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	vacancyRef, _ := cmd.Flags().GetString("vacancy")

	coordinator, err := s.deps.coordinator(ctx)
	if err != nil {
		return fmt.Errorf("building analysis: %w", err)
	}

	var report *analysis.Report
	if vacancyRef != "" {
		if force {
			s.logger.Warn("--force is ignored with --vacancy, only pending applications are analyzed")
		}

		userID, err := s.deps.userID(ctx)
		if err != nil {
			return err
		}
		vacancyID, err := s.deps.findVacancy(ctx, userID, vacancyRef)
		if err != nil {
			return err
		}

		report, err = coordinator.AnalyzeVacancy(ctx, vacancyID)
		if err != nil {
			return err
		}
	} else {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		if force && !autoApprove {
			if err := confirm(fmt.Sprintf("Replace existing results of %d application(s)?", len(ids))); err != nil {
				return err
			}
		}

		report, err = analyzeIDs(ctx, coordinator, ids, force, s.config.Analysis.MaxBatch)
		if err != nil {
			return err
		}
	}

	logReport(s.logger, report)

	pretty, _ := json.MarshalIndent(report, "", "  ")
	fmt.Fprintln(os.Stdout, string(pretty))
	return nil
}

// analyzeIDs splits ids into batches the coordinator accepts.
func analyzeIDs(ctx context.Context, coordinator *analysis.Coordinator, ids []uuid.UUID, force bool, maxBatch int) (*analysis.Report, error) {
	if maxBatch <= 0 {
		maxBatch = analysis.DefaultMaxBatch
	}

	total := &analysis.Report{}
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		report, err := coordinator.Run(ctx, analysis.BatchRequest{ApplicationIDs: ids[start:end], Force: force})
		if err != nil {
			return total, err
		}
		total.Merge(report)
	}
	return total, nil
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("application id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func confirm(label string) error {
	prompt := promptui.Select{
		Label: label,
		Items: []string{PromptYes, PromptNo},
	}

	_, answer, err := prompt.Run()
	if err != nil {
		return err
	}
	if answer != PromptYes {
		return errNotConfirmed
	}
	return nil
}
