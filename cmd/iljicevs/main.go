package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyacartwright/iljicevs-ml/internal/balance"
	"github.com/ilyacartwright/iljicevs-ml/internal/cfg"
	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/ensemble"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
	"github.com/ilyacartwright/iljicevs-ml/internal/metrics"
	"github.com/ilyacartwright/iljicevs-ml/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	serve := flag.Bool("serve", false, "Keep the metrics endpoint up after the run completes")
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Optional .env for local runs
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(cancel)

	// Initialize components
	m := metrics.New()
	store := initializeStorage(c, m)
	if store != nil {
		defer store.Close()
	}
	startMetricsServer(ctx, c)

	if err := runPipeline(ctx, c, m, store); err != nil {
		m.ErrorsInc()
		log.Fatal().Err(err).Msg("pipeline failed")
	}

	if *serve {
		<-ctx.Done()
	}
	log.Info().Msg("done")
}

// handleSignals cancels the root context on SIGINT/SIGTERM so in-flight
// tuning and bootstrap work can finish with partial results.
func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings, m *metrics.Metrics) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			m.ErrorsInc()
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
			return nil
		}
		return store
	}
	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		// Add health endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		// Add metrics endpoint
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// loadData reads the configured CSV training set, falling back to a
// synthetic three-class set when no path is configured.
func loadData(c cfg.Settings) (dataset.Matrix, []int, error) {
	if c.TrainPath != "" {
		x, y, features, classes, err := dataset.LoadCSV(c.TrainPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("path", c.TrainPath).
			Int("rows", len(x)).
			Strs("features", features).
			Strs("classes", classes).
			Msg("training data loaded")
		return x, y, nil
	}

	x, y := dataset.Synthetic(600, 6, 3, c.Seed)
	log.Info().Int("rows", len(x)).Msg("no training path configured, using synthetic data")
	return x, y, nil
}

// buildRegistry registers the built-in candidate families with their search
// grids, plus the remote scorer when one is configured.
func buildRegistry(c cfg.Settings) (*ensemble.Registry, error) {
	reg := ensemble.NewRegistry()

	type entry struct {
		id   string
		est  estimator.Estimator
		grid estimator.Grid
	}
	entries := []entry{
		{"knn", estimator.NewKNN(5), estimator.Grid{
			"neighbors": {3, 5, 7, 9},
		}},
		{"logistic", estimator.NewLogistic(0.1, 200, 0.001), estimator.Grid{
			"learning_rate": {0.01, 0.1, 0.5},
			"l2":            {0, 0.001, 0.01},
		}},
		{"gaussian_nb", estimator.NewGaussianNB(1e-9), estimator.Grid{
			"var_smoothing": {1e-9, 1e-8, 1e-7},
		}},
	}
	if c.RemoteScorerURL != "" {
		entries = append(entries, entry{"remote", estimator.NewRemote(c.RemoteScorerURL, c.RESTTimeout, 3), nil})
	}

	for _, e := range entries {
		if err := reg.Register(e.id, e.est, e.grid); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// runPipeline executes one full engine pass: audit, tune, score, select,
// fit, estimate uncertainty, persist.
func runPipeline(ctx context.Context, c cfg.Settings, m *metrics.Metrics, store *storage.Store) error {
	x, y, err := loadData(c)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	trainX, trainY, testX, testY, err := dataset.TrainTestSplit(x, y, c.TestFraction, c.Seed)
	if err != nil {
		return fmt.Errorf("split data: %w", err)
	}

	auditor := balance.New(c.ImbalanceThreshold, c.Seed)
	balancedX, balancedY, report, err := auditor.Audit(trainX, trainY)
	if err != nil {
		return fmt.Errorf("balance audit: %w", err)
	}
	log.Info().Stringer("report", report).Msg("class balance audited")
	if !c.Rebalance {
		// Audit-only mode keeps the training set as it is.
		balancedX, balancedY = trainX, trainY
	}

	reg, err := buildRegistry(c)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	tuner := ensemble.NewTuner(c.Folds, c.Seed, c.Workers, c.PrimaryMetric, m)
	outcomes, err := tuner.TuneAll(ctx, reg, balancedX, balancedY)
	if err != nil {
		return fmt.Errorf("tune candidates: %w", err)
	}
	for _, o := range outcomes {
		log.Info().
			Str("candidate", o.CandidateID).
			Interface("params", o.BestParams).
			Float64("mean", o.Mean).
			Int("evaluated", o.Evaluated).
			Bool("incomplete", o.Incomplete).
			Msg("tuning outcome")
	}

	scorer := ensemble.NewScorer(c.Folds, c.Seed, c.Workers, m)
	records, err := scorer.Score(ctx, reg, balancedX, balancedY, c.Metrics)
	if err != nil {
		return fmt.Errorf("score candidates: %w", err)
	}
	if store != nil {
		if err := store.StoreScores(records, time.Now().UTC()); err != nil {
			m.ErrorsInc()
			log.Warn().Err(err).Msg("failed to persist score records")
		}
	}

	sel, err := ensemble.Select(records, c.PrimaryMetric, c.TopN)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}

	ens, err := ensemble.NewEnsemble(reg, sel, m)
	if err != nil {
		return fmt.Errorf("assemble ensemble: %w", err)
	}
	if err := ens.Fit(ctx, balancedX, balancedY); err != nil {
		return fmt.Errorf("fit ensemble: %w", err)
	}

	testScore, err := ens.Score(testX, testY)
	if err != nil {
		return fmt.Errorf("score ensemble: %w", err)
	}
	log.Info().Float64("accuracy", testScore).Int("rows", len(testX)).Msg("held-out evaluation")

	stability := ensemble.NewStabilityEstimator(c.BootstrapIterations, c.Seed, c.Workers, c.UseProbabilities, m)
	stab, err := stability.Estimate(ctx, ens, testX)
	if err != nil {
		return fmt.Errorf("estimate stability: %w", err)
	}

	confidence := ensemble.NewConfidenceEstimator(c.BootstrapIterations, c.Alpha, c.Seed, c.Workers, c.PrimaryMetric, m)
	ci, err := confidence.Estimate(ctx, ens, testX, testY)
	if err != nil {
		return fmt.Errorf("estimate confidence interval: %w", err)
	}

	log.Info().
		Strs("members", ens.Members()).
		Floats64("weights", ens.Weights()).
		Float64("stability", stab.Score).
		Float64("ci_lower", ci.Lower).
		Float64("ci_upper", ci.Upper).
		Msg("pipeline complete")

	if store != nil {
		var buf bytes.Buffer
		if err := ens.Save(&buf); err != nil {
			m.ErrorsInc()
			log.Warn().Err(err).Msg("failed to serialize ensemble")
			return nil
		}
		note := fmt.Sprintf("accuracy=%.4f stability=%.4f", testScore, stab.Score)
		version, err := store.SaveEnsemble(buf.Bytes(), ens.Members(), note)
		if err != nil {
			m.ErrorsInc()
			log.Warn().Err(err).Msg("failed to persist ensemble")
			return nil
		}
		log.Info().Uint64("version", version).Msg("ensemble persisted and activated")
	}
	return nil
}
