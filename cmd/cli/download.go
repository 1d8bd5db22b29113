package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/infrastructure"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a video in this process",
	Long: `Runs one download job locally without a server. Ctrl+C cancels the
transfer; the command exits non-zero when the job fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringP("quality", "q", "", "Quality: best, 720p, 480p, 360p, audio-only (default from config)")
	downloadCmd.Flags().StringP("dir", "d", "", "Destination directory (default from config)")
	downloadCmd.Flags().Bool("no-progress", false, "Print status lines instead of a progress bar")
}

func runDownload(cmd *cobra.Command, args []string) error {
	config := cliConfig
	log := logger.NewCLI(verbose)
	defer log.Sync()

	qualityLabel, _ := cmd.Flags().GetString("quality")
	if qualityLabel == "" {
		qualityLabel = config.Download.DefaultQuality
	}
	quality, err := domain.ParseQuality(qualityLabel)
	if err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("dir")
	if dest == "" {
		dest = config.Download.Dir
	}

	job, err := domain.NewDownloadJob(args[0], quality, dest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.NewJobRunner(localFetcher(config, log), log)

	var pc *mpb.Progress
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		runner.Observe(lineObserver(cmd.OutOrStdout()))
	} else {
		pc = mpb.New(mpb.WithWidth(64), mpb.WithOutput(cmd.ErrOrStderr()))
		runner.Observe(newBarObserver(pc, job.Source()))
	}

	h, err := runner.Submit(ctx, job)
	if err != nil {
		return err
	}

	record, err := h.Wait(context.Background())
	if pc != nil {
		pc.Wait()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", record.Destination)
	return nil
}

// localFetcher picks the configured backend; the binary backend writes its
// process log to the configured fetch logs directory
func localFetcher(config *domain.Config, log *zap.Logger) domain.Fetcher {
	if config.Fetcher.Backend == domain.BackendBinary {
		return infrastructure.NewBinaryFetcher(&config.Fetcher, config.Fetcher.LogsDir, nil, log)
	}
	return infrastructure.NewLibraryFetcher(&config.Fetcher, log)
}
