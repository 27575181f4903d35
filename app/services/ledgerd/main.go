package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/kryptobot/auditchain/app/services/ledgerd/handlers"
	"github.com/kryptobot/auditchain/foundation/events"
	"github.com/kryptobot/auditchain/foundation/ledger/genesis"
	"github.com/kryptobot/auditchain/foundation/ledger/state"
	"github.com/kryptobot/auditchain/foundation/ledger/tuning"
	"github.com/kryptobot/auditchain/foundation/ledger/worker"
	"github.com/kryptobot/auditchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGERD")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		State struct {
			DBPath         string        `conf:"default:zledger/audit.db"`
			GenesisPath    string        `conf:"default:zledger/genesis.json"`
			ChainID        string        `conf:"default:kryptobot-audit"`
			Difficulty     uint16        `conf:"default:4"`
			TransPerBlock  uint16        `conf:"default:10"`
			MiningInterval time.Duration `conf:"default:30s"`
			MiningTimeout  time.Duration `conf:"default:2m"`
			AttemptCeiling uint64        `conf:"default:0"`
			AutoMine       bool          `conf:"default:true"`
			TuningPath     string        `conf:"default:"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "LEDGER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Ledger Support

	// The chain parameters are fixed for the life of a chain, so they come
	// from the genesis file when one exists. The configured values only apply
	// the first time a chain is created.
	gen, err := genesis.LoadOrCreate(cfg.State.GenesisPath, genesis.Genesis{
		ChainID:       cfg.State.ChainID,
		Difficulty:    cfg.State.Difficulty,
		TransPerBlock: cfg.State.TransPerBlock,
	})
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	log.Infow("startup", "status", "chain parameters", "chainID", gen.ChainID, "difficulty", gen.Difficulty, "transPerBlock", gen.TransPerBlock)

	// The ledger packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value manages the audit chain database and provides an API
	// for application support.
	st, err := state.New(state.Config{
		DBPath:         cfg.State.DBPath,
		Genesis:        gen,
		MiningTimeout:  cfg.State.MiningTimeout,
		AttemptCeiling: cfg.State.AttemptCeiling,
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package implements the periodic and signaled mining
	// workflows. The worker will register itself with the state.
	w := worker.Run(st, cfg.State.MiningInterval, cfg.State.AutoMine, ev)

	// =========================================================================
	// Tuning Support

	// When a tuning file is configured, the mining cadence can be adjusted
	// at runtime by editing the file. Chain parameters are not tunable.
	if cfg.State.TuningPath != "" {
		loader, err := tuning.NewLoader(cfg.State.TuningPath)
		if err != nil {
			return fmt.Errorf("unable to load tuning file: %w", err)
		}

		apply := func(t tuning.Tuning) {
			if t.MiningIntervalSeconds > 0 {
				w.UpdateInterval(time.Duration(t.MiningIntervalSeconds) * time.Second)
			}
			if t.MiningTimeoutSeconds > 0 {
				st.SetMiningTimeout(time.Duration(t.MiningTimeoutSeconds) * time.Second)
			}
			if t.AutoMine != nil {
				w.SetAutoMine(*t.AutoMine)
			}
		}
		apply(loader.Tuning())
		loader.OnChange(apply)

		stopWatch, err := loader.Watch()
		if err != nil {
			return fmt.Errorf("unable to watch tuning file: %w", err)
		}
		defer stopWatch()

		log.Infow("startup", "status", "tuning file watched", "path", cfg.State.TuningPath)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints, the
	// Prometheus scrape endpoint, and the health checks.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
