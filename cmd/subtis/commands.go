package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/subtis/internal/api"
	"github.com/amaumene/subtis/internal/api/handlers"
	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/controllers"
	"github.com/amaumene/subtis/internal/scheduler"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand() *cobra.Command {
	var crawlOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lookup API, the crawl scheduler and the not-found watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sched := scheduler.NewScheduler(a.indexer, a.notFound, a.cfg.CrawlSchedule, a.cfg.NotFoundSweepSchedule, crawlOnStart, a.logger)
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			go a.notFound.Run(ctx)

			server := api.NewServer(a.cfg, api.Dependencies{
				Lookup:     a.lookup,
				Indexer:    a.indexer,
				Stats:      a.db,
				Providers:  a.engine.Providers(),
				StorageDir: a.storage.Root(),
			}, a.logger)

			a.logger.Info("Subtis is running")
			if err := server.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("Subtis stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&crawlOnStart, "crawl-on-start", false, "Run a catalog crawl immediately")
	return cmd
}

func newCrawlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one full catalog crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			summary, err := a.indexer.IndexCatalog(ctx)
			if summary != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "pages=%d releases=%d indexed=%d existing=%d skipped=%d failed=%d\n",
					summary.Pages, summary.Releases, summary.Indexed, summary.Existing, summary.Skipped, summary.Failed)
			}
			return err
		},
	}
}

func newIndexCommand() *cobra.Command {
	var size int64

	cmd := &cobra.Command{
		Use:   "index <file-name>",
		Short: "Index subtitles for one release file name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			result, err := a.indexer.IndexFileName(ctx, args[0], size)
			if err != nil {
				return fmt.Errorf("%s: %w", controllers.Classify(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): stored=%d existing=%d\n", result.Title, result.ExternalID, result.Stored, result.Existing)
			return nil
		},
	}

	cmd.Flags().Int64Var(&size, "bytes", 0, "Size of the video file in bytes")
	return cmd
}

func newLookupCommand() *cobra.Command {
	var (
		fileName string
		size     int64
		server   string
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Ask a running server for the subtitle of a video file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileName == "" {
				return fmt.Errorf("%s: --file", handlers.MessageRequiredProperty)
			}
			if server == "" {
				server = config.LocalServerURL()
			}

			sub, status, err := requestSubtitle(cmd.Context(), server, fileName, size)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("%s", handlers.MessageForStatus(status))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d)\n", sub.Title.Name, sub.Title.Year)
			fmt.Fprintf(out, "%s %s by %s\n", sub.Resolution, sub.ReleaseGroup.Name, sub.SubtitleGroup.Name)
			fmt.Fprintln(out, sub.SubtitleLink)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fileName, "file", "f", "", "Video file name")
	cmd.Flags().Int64Var(&size, "bytes", 0, "Size of the video file in bytes")
	cmd.Flags().StringVar(&server, "server", "", "Base URL of the subtis server")
	return cmd
}

func requestSubtitle(ctx context.Context, server, fileName string, size int64) (*controllers.SubtitleResponse, int, error) {
	body, err := json.Marshal(handlers.FileRequest{FileName: fileName, Bytes: size})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/v1/subtitle", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var sub controllers.SubtitleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sub); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return &sub, resp.StatusCode, nil
}

