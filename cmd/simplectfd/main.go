package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i3visio/simplectf"
	"github.com/i3visio/simplectf/challenge"
	"github.com/i3visio/simplectf/config"
	"github.com/i3visio/simplectf/internal"
	"github.com/i3visio/simplectf/routes"
	"github.com/i3visio/simplectf/service"
	"github.com/i3visio/simplectf/store"
)

var (
	rulesFname   = flag.String("rules", "", "CTF definition (YAML or JSON) with the title, description and challenges")
	dataDir      = flag.String("data", "./data", "folder the score file is kept in when no other store is configured")
	bind         = flag.String("bind", "localhost:5000", "network address to bind HTTP to")
	metricsBind  = flag.String("metrics-bind", ":9090", "network address to bind metrics to, empty to disable")
	slogLevel    = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	storeBackend = flag.String("store-backend", "", "if set, overrides the store backend of the rules file (one of: file, bbolt, valkey, postgres, memory)")
	storeParams  = flag.String("store-params", "{}", "JSON parameters for --store-backend")
	versionFlag  = flag.Bool("version", false, "print SimpleCTF version")
)

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("SimpleCTF", simplectf.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *rulesFname == "" {
		log.Fatal("--rules is required")
	}

	ctf, err := config.LoadFile(*rulesFname)
	if err != nil {
		log.Fatalf("can't load rules: %v", err)
	}

	set, err := challenge.New(ctf.Challenges)
	if err != nil {
		log.Fatalf("can't load challenges: %v", err)
	}

	storeCfg, err := storeConfig(ctf.Store)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, ctf.Title, storeCfg)
	if err != nil {
		log.Fatalf("can't open score store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("can't close score store", "err", err)
		}
	}()

	svc := service.New(ctf.Title, ctf.Description, set, st)

	wg := new(sync.WaitGroup)
	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	srv := http.Server{
		Handler:           routes.SetupRoutes(svc),
		ErrorLog:          internal.GetFilteredHTTPLogger(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", *bind)
	if err != nil {
		log.Fatalf("failed to bind to %s: %v", *bind, err)
	}

	slog.Info(
		"listening",
		"url", "http://"+listener.Addr().String(),
		"title", ctf.Title,
		"challenges", set.Len(),
		"store", storeCfg.Backend,
		"version", simplectf.Version,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
	slog.Info("SimpleCTF closed")
}

// storeConfig picks the store: --store-backend first, then the rules
// file, then a status file under --data.
func storeConfig(fromRules config.Store) (config.Store, error) {
	result := config.FileStore(*dataDir)

	switch {
	case *storeBackend != "":
		result = config.Store{Backend: *storeBackend, Parameters: json.RawMessage(*storeParams)}
	case !fromRules.Zero():
		result = fromRules
	}

	if err := result.Valid(); err != nil {
		return config.Store{}, fmt.Errorf("invalid store configuration: %w", err)
	}

	return result, nil
}

func buildStore(ctx context.Context, title string, cfg config.Store) (store.Store, error) {
	fac, ok := store.Get(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStoreBackend, cfg.Backend)
	}

	return fac.Build(ctx, title, cfg.Parameters)
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, err := net.Listen("tcp", *metricsBind)
	if err != nil {
		log.Fatalf("failed to bind metrics to %s: %v", *metricsBind, err)
	}
	slog.Debug("listening for metrics", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
