package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/QuantaFTL/internal/config"
	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
	"github.com/dshills/QuantaFTL/internal/ftl"
	"github.com/dshills/QuantaFTL/internal/log"
	"github.com/dshills/QuantaFTL/internal/maintenance"
	"github.com/dshills/QuantaFTL/internal/metrics"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

const (
	demoLogicalPage = 42
	demoValue       = 1234
)

type options struct {
	configFile  string
	blocks      int
	pages       int
	logical     int
	threshold   int
	logLevel    string
	writes      int
	seed        int64
	levelEvery  int
	schedule    string
	metricsAddr string
	dumpPath    string
	inspectPath string
}

func main() {
	var (
		opts        options
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.StringVar(&opts.configFile, "config", "", "Path to configuration file (.json, .yaml)")
	flag.IntVar(&opts.blocks, "blocks", 0, "Number of erase blocks")
	flag.IntVar(&opts.pages, "pages", 0, "Pages per block")
	flag.IntVar(&opts.logical, "logical", 0, "Number of logical pages")
	flag.IntVar(&opts.threshold, "threshold", 0, "Wear spread that triggers leveling")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.IntVar(&opts.writes, "writes", 0, "Random writes to issue after the demo write")
	flag.Int64Var(&opts.seed, "seed", 1, "Seed for the random workload")
	flag.IntVar(&opts.levelEvery, "level-every", 0, "Run a leveling pass every N workload writes (0 disables)")
	flag.StringVar(&opts.schedule, "schedule", "", "Cron schedule for background leveling, e.g. \"@every 1s\"")
	flag.StringVar(&opts.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address and wait for a signal")
	flag.StringVar(&opts.dumpPath, "dump", "", "Write a compressed device image to this file")
	flag.StringVar(&opts.inspectPath, "inspect", "", "Print the summary of a device image and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ftlsim v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if opts.levelEvery > 0 && opts.writes == 0 {
		log.Warn("-level-every has no effect without -writes", log.Int("level_every", opts.levelEvery))
	}

	var err error
	if opts.inspectPath != "" {
		err = inspect(opts.inspectPath)
	} else {
		err = run(opts)
	}
	if err != nil {
		log.Error("ftlsim failed", log.Err(err))
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, err
		}
	}

	cfg.LoadFromFlags(opts.blocks, opts.pages, opts.logical, opts.threshold, opts.logLevel)
	if opts.schedule != "" {
		cfg.WearLeveling.Schedule = opts.schedule
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := log.Configure(cfg.Log)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	dev, err := ftl.New(cfg, ftl.WithLogger(logger), ftl.WithRecorder(collector))
	if err != nil {
		return err
	}
	reg.MustRegister(metrics.NewDeviceCollector(dev))

	logger.Info("starting ftlsim",
		"version", version,
		"device", dev.ID().String(),
		"blocks", cfg.Geometry.Blocks,
		"pages_per_block", cfg.Geometry.PagesPerBlock,
		"logical_pages", cfg.Geometry.LogicalPages)

	dev.Initialize()

	if err := demo(dev, cfg); err != nil {
		return err
	}

	if cfg.WearLeveling.Schedule != "" {
		sched, err := maintenance.NewScheduler(cfg.WearLeveling.Schedule, dev, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if opts.writes > 0 {
		workload(dev, logger, cfg.Geometry.LogicalPages, opts)
	}

	stats, err := json.MarshalIndent(dev.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(stats))

	if opts.dumpPath != "" {
		if err := dump(dev, opts.dumpPath); err != nil {
			return err
		}
		logger.Info("device image written", "path", opts.dumpPath)
	}

	if cfg.Metrics.Enabled {
		return serveMetrics(cfg.Metrics.Listen, reg, logger)
	}
	return nil
}

// demo performs one write and one leveling pass, printing the mapping.
func demo(dev *ftl.FTL, cfg *config.Config) error {
	logical := demoLogicalPage
	if logical >= cfg.Geometry.LogicalPages {
		logical = 0
	}

	if err := dev.Write(logical, demoValue); err != nil {
		return fmt.Errorf("demo write failed: %w", err)
	}

	loc, _, err := dev.Lookup(logical)
	if err != nil {
		return err
	}
	fmt.Printf("L2P[%d] = Block %d, Page %d\n", logical, loc.Block, loc.Page)

	dev.RunWearLevelingPass()
	return nil
}

// workloadResult counts workload writes by outcome.
type workloadResult struct {
	ok        int
	retryable int
	failed    int
}

func workload(dev *ftl.FTL, logger log.Logger, logicalPages int, opts options) workloadResult {
	rng := rand.New(rand.NewSource(opts.seed))
	start := time.Now()
	var res workloadResult

	for i := 0; i < opts.writes; i++ {
		l := rng.Intn(logicalPages)
		err := dev.Write(l, rng.Int63())
		switch {
		case err == nil:
			res.ok++
		case ftlerrors.Retryable(ftlerrors.GetError(err).Code):
			// out of space until a leveling pass or erase frees a block
			res.retryable++
		default:
			res.failed++
			logger.Warn("write failed", log.LogicalPage(l), log.Err(err))
		}

		if opts.levelEvery > 0 && (i+1)%opts.levelEvery == 0 {
			dev.RunWearLevelingPass()
		}
	}

	logger.Info("workload complete",
		log.Int("writes", opts.writes),
		log.Int("ok", res.ok),
		log.Int("retryable", res.retryable),
		log.Int("failed", res.failed),
		log.Duration("elapsed", time.Since(start)))
	return res
}

func dump(dev *ftl.FTL, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := dev.WriteImage(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	return f.Close()
}

func inspect(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	snap, err := ftl.DecodeImage(data)
	if ftlerrors.IsError(err, ftlerrors.InvalidImage) {
		return fmt.Errorf("%s is not a valid device image: %w", path, err)
	}
	if err != nil {
		return err
	}
	log.Debug("device image decoded", log.String("path", path), log.Int("bytes", len(data)))

	mapped := 0
	for _, m := range snap.Mapping {
		if m.Mapped() {
			mapped++
		}
	}
	minWear, maxWear := 0, 0
	for i, w := range snap.Wear {
		if i == 0 || w < minWear {
			minWear = w
		}
		if i == 0 || w > maxWear {
			maxWear = w
		}
	}

	fmt.Printf("device:          %s\n", snap.DeviceID)
	fmt.Printf("geometry:        %d blocks x %d pages, %d logical pages\n", snap.Blocks, snap.PagesPerBlock, snap.LogicalPages)
	fmt.Printf("mapped pages:    %d\n", mapped)
	fmt.Printf("wear (min/max):  %d/%d\n", minWear, maxWear)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
