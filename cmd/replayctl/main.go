// replayctl assembles session replays from the backend on the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sessionkit/replay-client/pkg/client"
	"github.com/sessionkit/replay-client/pkg/logging"
	"github.com/sessionkit/replay-client/pkg/query"
	"github.com/sessionkit/replay-client/pkg/replay"
)

var (
	flagOrg      string
	flagProject  string
	flagPerPage  int
	flagInterval time.Duration
	flagMetrics  string
	flagPretty   bool
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "replayctl",
		Short: "Fetch and watch session replays from the backend",
		Long: `replayctl assembles a complete session replay from its paginated
backend collections: the root record, the recording segments, and the
errors from both datasets, plus the derived feedback events.

Configuration comes from flags and environment variables (optionally via
a .env file): BACKEND_URL, BACKEND_TOKEN, REDIS_URL, LOG_LEVEL.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagOrg, "org", getEnv("REPLAY_ORG", ""), "organization slug")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", getEnv("REPLAY_PROJECT", ""), "project slug")
	rootCmd.PersistentFlags().IntVar(&flagPerPage, "per-page", 100, "page size for paginated collections")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human-readable log output")

	fetchCmd := &cobra.Command{
		Use:   "fetch <replay-id>",
		Short: "Assemble one replay and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	watchCmd := &cobra.Command{
		Use:   "watch <replay-id>",
		Short: "Assemble a replay and keep polling its root record",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVar(&flagInterval, "interval", replay.DefaultPollInterval, "record poll interval")
	watchCmd.Flags().StringVar(&flagMetrics, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(fetchCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	app, err := buildApp(args[0])
	if err != nil {
		return err
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	result := app.agg.Fetch(ctx)
	return printAggregate(result)
}

func runWatch(cmd *cobra.Command, args []string) error {
	replayID := args[0]

	app, err := buildApp(replayID)
	if err != nil {
		return err
	}
	defer app.close()

	logger := logging.NewLogger("replayctl")

	if flagMetrics != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", flagMetrics).Msg("Serving metrics")
			if err := http.ListenAndServe(flagMetrics, nil); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	result := app.agg.Fetch(ctx)
	if err := printAggregate(result); err != nil {
		return err
	}

	// The poller shares the aggregator's record cache entry; each tick
	// refreshes it in place.
	poller := replay.NewPoller(app.backend, app.cache, app.scope, flagInterval)
	poller.Start(ctx, func(rec *replay.Record) {
		if rec == nil {
			logger.Warn().Msg("Record poll failed")
			return
		}
		logger.Info().
			Int("count_segments", rec.CountSegments).
			Int("count_errors", rec.CountErrors).
			Msg("Record refreshed")
	})
	defer poller.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("Shutting down")
	return nil
}

// app bundles everything one replayctl invocation needs.
type app struct {
	agg     *replay.Aggregator
	backend *client.Client
	cache   *query.Cache
	scope   replay.Scope
	close   func()
}

// buildApp wires redis, the HTTP client, and a fresh query cache for one
// replay.
func buildApp(replayID string) (*app, error) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: flagPretty,
		Output: os.Stderr,
	})

	if flagOrg == "" || flagProject == "" {
		return nil, fmt.Errorf("--org and --project are required (or REPLAY_ORG / REPLAY_PROJECT)")
	}

	baseURL := os.Getenv("BACKEND_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_URL", "localhost:6379"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	backend, err := client.New(client.DefaultConfig(redisClient, baseURL, os.Getenv("BACKEND_TOKEN")))
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	scope := replay.Scope{
		Org:      flagOrg,
		Project:  flagProject,
		ReplayID: replayID,
	}
	cache := query.NewCache()
	agg := replay.NewAggregator(backend, cache, replay.Config{
		Scope:   scope,
		PerPage: flagPerPage,
	})

	return &app{
		agg:     agg,
		backend: backend,
		cache:   cache,
		scope:   scope,
		close: func() {
			backend.Close()
			redisClient.Close()
		},
	}, nil
}

func printAggregate(result replay.Aggregate) error {
	summary := map[string]interface{}{
		"status": result.Status.String(),
	}
	if result.Record != nil {
		summary["replay_id"] = result.Record.ID
		summary["project"] = result.Record.ProjectSlug
		summary["count_segments"] = result.Record.CountSegments
		summary["count_errors"] = result.Record.CountErrors
	}
	summary["segments"] = len(result.Segments)
	summary["errors"] = len(result.Errors)
	summary["feedback"] = len(result.Feedback)
	if result.FetchError != nil {
		summary["fetch_error"] = result.FetchError.Error()
	}
	if result.SegmentsError != nil {
		summary["segments_error"] = result.SegmentsError.Error()
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.Status == query.StatusError {
		return fmt.Errorf("replay aggregate finished with errors")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
