package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/file2link/packer/internal/admission"
	"github.com/file2link/packer/internal/config"
	"github.com/file2link/packer/internal/logging"
	"github.com/file2link/packer/internal/packer"
	"github.com/file2link/packer/internal/registry"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	config string
	user   string
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.config, "config", "c", "", "Path to YAML config file")
	fs.StringVarP(&c.user, "user", "u", "", "User ID")
}

func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	return fs
}

// loadConfig layers defaults, the optional config file and PACKER_*
// environment variables.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		fileCfg, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[packer] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// env is everything a command needs to talk to the store and the engine.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *registry.Registry
	gate     *admission.Controller
	engine   *packer.Engine
}

func openEnv(ctx context.Context, cfg config.Config) (*env, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(ctx, cfg.DBPath, cfg.BaseDir, cfg.PublicURL, logger)
	if err != nil {
		return nil, err
	}

	gate := admission.New(admission.Options{
		MaxConcurrent: cfg.Admission.MaxConcurrent,
		CPULimit:      cfg.Admission.CPULimit,
		Sampler:       admission.SystemSampler{Interval: cfg.Admission.SampleInterval},
		Logger:        logger,
	})

	engine, err := packer.New(reg, gate,
		packer.WithLogger(logger),
		packer.WithSystemCeiling(cfg.MaxPartSize()),
		packer.WithMaxFiles(cfg.MaxFiles),
		packer.WithMaxTotalSize(cfg.MaxTotalSize),
		packer.WithBufferSize(int(cfg.BufferSize)),
		packer.WithCancelCheckEvery(cfg.CancelCheckEvery),
		packer.WithSplitMode(packer.SplitMode(cfg.SplitMode)),
		packer.WithJobTimeout(cfg.JobTimeout),
		packer.WithCategories(cfg.SourceCategory, cfg.OutputCategory),
	)
	if err != nil {
		reg.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, registry: reg, gate: gate, engine: engine}, nil
}

func (e *env) Close() {
	e.registry.Close()
	e.logger.Sync()
}

// errorMessage is the user-facing text for err.
func errorMessage(err error) string {
	var perr *packer.Error
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return err.Error()
}

// exitCodeFor maps a job error to the command's exit code.
func exitCodeFor(err error) int {
	var perr *packer.Error
	if !errors.As(err, &perr) {
		return ExitGeneralError
	}
	switch perr.Kind {
	case packer.KindValidation:
		return ExitInvalidArgs
	case packer.KindAdmissionDenied:
		return ExitAdmissionDenied
	case packer.KindSourceRead:
		return ExitSourceRead
	case packer.KindFatalWrite:
		return ExitStorageError
	case packer.KindTimeout:
		return ExitTimeout
	default:
		return ExitGeneralError
	}
}
