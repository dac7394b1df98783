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

	"github.com/ancourn/kaldr1-sub002/app/services/node/handlers"
	"github.com/ancourn/kaldr1-sub002/business/core/archive"
	"github.com/ancourn/kaldr1-sub002/business/core/archive/stores/archivedb"
	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/audit"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database/disk"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/worker"
	"github.com/ancourn/kaldr1-sub002/foundation/logger"
	"github.com/ancourn/kaldr1-sub002/foundation/metrics"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
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
			WriteTimeout    time.Duration `conf:"default:30s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		State struct {
			SealerName     string   `conf:"default:sealer"`
			GenesisPath    string   `conf:"default:zledger/genesis.json"`
			DBPath         string   `conf:"default:zledger/blocks/"`
			SelectStrategy string   `conf:"default:priority"`
			KnownPeers     []string `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
		}
		Keystore struct {
			Folder string `conf:"default:zledger/accounts/"`
		}
		Archive struct {
			DBPath       string        `conf:"default:zledger/archive.db"`
			PollInterval time.Duration `conf:"default:5s"`
			SnapInterval time.Duration `conf:"default:1m"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
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

	fmt.Println(` _  __    _    _     ____  ____  _____  __  _   _  ___  ____  _____ `)
	fmt.Println(`| |/ /   / \  | |   |  _ \|  _ \|_ _\ \/ / | \ | |/ _ \|  _ \| ____|`)
	fmt.Println(`| ' /   / _ \ | |   | | | | |_) || | \  /  |  \| | | | | | | |  _|  `)
	fmt.Println(`| . \  / ___ \| |___| |_| |  _ < | | /  \  | |\  | |_| | |_| | |___ `)
	fmt.Println(`|_|\_\/_/   \_\_____|____/|_| \_\___/_/\_\ |_| \_|\___/|____/|_____|`)
	fmt.Print("\n")

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Keystore Support

	// The keystore holds the private keys this node manages, including the
	// sealer key. Key file names double as account names for logging.
	ks, err := keystore.New(cfg.Keystore.Folder)
	if err != nil {
		return fmt.Errorf("unable to load keystore: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for _, accountID := range ks.Accounts() {
		log.Infow("startup", "status", "keystore", "name", ks.Lookup(accountID), "account", accountID)
	}

	// Need the private key for the configured sealer so the account can get
	// credited with rewards and tips.
	privateKey, err := ks.PrivateKey(cfg.State.SealerName)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	// =========================================================================
	// Chain Support

	// The genesis file declares the chain id and every economic parameter
	// the engines start from.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// Blocks are persisted one file per block under the configured path.
	storage, err := disk.New(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("unable to access chain storage: %w", err)
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.State.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The events bus fans node activity out to websocket subscribers. The
	// ledger packages accept a function of this signature to allow the
	// application to log.
	evts := events.New()
	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...), "traceid", "00000000-0000-0000-0000-000000000000")
	}

	// The metrics value holds the prometheus collectors served on the
	// debug mux.
	mtr := metrics.New()

	// The state value represents the node and manages the chain database,
	// the economic engines, and provides an API for application support.
	st, err := state.New(state.Config{
		SealerKey:      privateKey,
		Host:           cfg.Web.PrivateHost,
		Genesis:        gen,
		Storage:        storage,
		SelectStrategy: cfg.State.SelectStrategy,
		KnownPeers:     peerSet,
		Events:         evts,
		Metrics:        mtr,
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package implements the different workflows such as sealing,
	// transaction peer sharing, and peer updates. The worker will register
	// itself with the state.
	worker.Run(st, ev)

	// The audit package runs load and adversarial scenarios against sandbox
	// copies of the chain. It backs the validation RPC methods.
	adt := audit.New(st, ev)

	// =========================================================================
	// Archive Support

	// The archive keeps a sql read model of the chain for operators: blocks,
	// transactions, peers, identity keys, and metric snapshots.
	store, err := archivedb.Open(cfg.Archive.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open archive database: %w", err)
	}
	defer store.Close()

	archiveCore := archive.NewCore(log, store)

	// Record every identity key the node holds so operators can audit which
	// keys were present over time.
	for accountID, publicKey := range ks.Identities() {
		key := archive.IdentityKey{
			Name:      ks.Lookup(accountID),
			AccountID: string(accountID),
			PublicKey: publicKey,
		}
		if err := archiveCore.RecordIdentityKey(context.Background(), key); err != nil {
			return fmt.Errorf("unable to record identity key: %w", err)
		}
	}

	poller := archive.NewPoller(log, archiveCore, st, cfg.Archive.PollInterval, cfg.Archive.SnapInterval)
	poller.Start()
	defer poller.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints, the
	// health checks, and the prometheus scrape endpoint.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
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
		Keystore: ks,
		Evts:     evts,
		Archive:  archiveCore,
		Audit:    adt,
		Metrics:  mtr,
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
