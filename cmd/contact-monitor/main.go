package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/banshee-data/contact.monitor/internal/api"
	"github.com/banshee-data/contact.monitor/internal/config"
	"github.com/banshee-data/contact.monitor/internal/db"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/grpcapi"
	"github.com/banshee-data/contact.monitor/internal/jointfeed"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
	"github.com/banshee-data/contact.monitor/internal/version"
)

var (
	configFile  = flag.String("config", config.DefaultConfigPath, "Path to the monitor JSON config")
	devMode     = flag.Bool("dev", false, "Replay a synthetic joint sweep instead of opening the serial port")
	listen      = flag.String("listen", "", "HTTP listen address (overrides http_listen)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address (overrides grpc_listen)")
	dbPath      = flag.String("db-path", "", "History database path (overrides db_path)")
	versionFlag = flag.Bool("version", false, "Print version and exit")
)

// devSweepPeriod paces the synthetic joint feed in dev mode.
const devSweepPeriod = 100 * time.Millisecond

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			os.Exit(runMigrate(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheck(os.Args[2:], os.Stdout))
		}
	}

	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadMonitorConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlagOverrides(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("graceful shutdown complete")
}

// applyFlagOverrides copies explicitly set command line values over cfg.
func applyFlagOverrides(cfg *config.MonitorConfig) {
	if *listen != "" {
		cfg.HTTPListen = listen
	}
	if *grpcListen != "" {
		cfg.GRPCListen = grpcListen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath, "Path to the monitor JSON config")
	path := fs.String("db-path", "", "History database path (overrides db_path)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	target := *path
	if target == "" {
		cfg, err := config.LoadMonitorConfig(*cfgPath)
		if err != nil {
			log.Printf("failed to load config: %v", err)
			return 1
		}
		target = cfg.GetDBPath()
	}
	if target == "" {
		log.Printf("contact history is disabled (db_path is empty)")
		return 1
	}
	if err := db.RunMigrateCommand(fs.Args(), target, os.Stdout); err != nil {
		log.Printf("migrate: %v", err)
		return 1
	}
	return 0
}

// monitorConfig maps the file config onto the monitor's fixed configuration.
func monitorConfig(cfg *config.MonitorConfig) monitor.Config {
	return monitor.Config{
		Namespace:       cfg.GetNamespace(),
		MonitoredLinks:  cfg.MonitoredLinks,
		TestType:        cfg.GetContactTestType(),
		ContactDistance: cfg.GetContactDistance(),
		JointStateTopic: cfg.GetJointStateTopic(),
	}
}

// loadEnvironment returns a nil interface when the scene cannot be loaded,
// which leaves the monitor inert but keeps the process serving status.
func loadEnvironment(path string) (environment.Environment, *environment.Env) {
	env, err := environment.LoadScene(path)
	if err != nil {
		log.Printf("failed to load environment %s: %v", path, err)
		return nil, nil
	}
	log.Printf("loaded environment %q from %s", env.Name(), path)
	return env, env
}

// openJointFeed picks the serial source: the synthetic sweep in dev mode, the
// configured port, or a disabled mux when no port is set.
func openJointFeed(ctx context.Context, cfg *config.MonitorConfig, joints []string) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		log.Printf("dev mode: replaying a synthetic sweep of %v", joints)
		return serialmux.NewMockSerialMux(ctx, jointSweep(joints, 64), devSweepPeriod), nil
	}
	sc := cfg.GetSerial()
	if sc.Port == "" {
		log.Printf("serial joint feed disabled")
		return serialmux.NewDisabledSerialMux(), nil
	}
	opts, err := serialmux.PortOptions{
		BaudRate: sc.BaudRate,
		DataBits: sc.DataBits,
		StopBits: sc.StopBits,
		Parity:   sc.Parity,
	}.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid serial options: %w", err)
	}
	mux, err := serialmux.NewRealSerialMux(sc.Port, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", sc.Port, err)
	}
	log.Printf("reading joint states from %s at %d baud", sc.Port, opts.BaudRate)
	return mux, nil
}

func run(ctx context.Context, cfg *config.MonitorConfig) error {
	mcfg := monitorConfig(cfg)
	names := mcfg.Names()

	env, describer := loadEnvironment(cfg.GetEnvironmentFile())

	results := topic.New[monitor.ContactResultVector](names.ContactResults)
	defer results.Close()
	joints := topic.New[monitor.JointState](names.JointStates)
	defer joints.Close()

	mon := monitor.New(mcfg, env, results)
	defer mon.Close()

	var markers *topic.Latched[monitor.MarkerArray]
	if cfg.GetPublishMarkers() {
		markers = topic.New[monitor.MarkerArray](names.ContactMarkers)
		defer markers.Close()
		mon.StartPublishingMarkers(markers)
	}

	var jointNames []string
	if describer != nil {
		jointNames = describer.JointNames()
	}
	feed, err := openJointFeed(ctx, cfg, jointNames)
	if err != nil {
		return err
	}
	defer feed.Close()

	var history *db.DB
	if path := cfg.GetDBPath(); path != "" {
		history, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer history.Close()
	}

	// HTTP and gRPC calls go through the audit wrapper when history is on.
	var svc interface {
		api.Service
		grpcapi.Service
	} = mon
	if history != nil {
		svc = db.NewAuditedMonitor(mon, history)
	}

	apiOpts := api.Options{
		Service:    svc,
		Names:      names,
		Results:    results,
		Markers:    markers,
		Joints:     joints,
		History:    history,
		Serial:     feed,
		SerialPort: cfg.GetSerial().Port,
		Clock:      timeutil.RealClock{},
	}
	if describer != nil {
		apiOpts.Env = describer
	}

	var wg conc.WaitGroup

	wg.Go(func() {
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("contact monitor not running: %v", err)
		}
	})

	wg.Go(func() {
		if err := feed.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial monitor stopped: %v", err)
		}
	})

	wg.Go(func() {
		if err := jointfeed.NewFeed(feed, timeutil.RealClock{}, joints).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("joint feed stopped: %v", err)
		}
	})

	wg.Go(func() {
		if err := jointfeed.Forward(ctx, joints, mon); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("joint forwarding stopped: %v", err)
		}
	})

	if history != nil {
		rec := db.NewRecorder(history, results, timeutil.RealClock{}, cfg.GetHistoryRetention())
		wg.Go(func() {
			if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("history recorder stopped: %v", err)
			}
		})
	}

	wg.Go(func() {
		srv := grpcapi.NewServer(svc, results, markers, joints, timeutil.RealClock{})
		if err := srv.ListenAndServe(ctx, cfg.GetGRPCListen()); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
		log.Printf("gRPC server routine stopped")
	})

	wg.Go(func() {
		mux := api.NewServer(apiOpts).ServeMux()
		feed.AttachAdminRoutes(mux)
		if history != nil {
			if err := history.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach history admin routes: %v", err)
			}
		}
		serveHTTP(ctx, cfg.GetHTTPListen(), api.LoggingMiddleware(mux))
	})

	wg.Wait()
	return nil
}

// serveHTTP runs the HTTP server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start HTTP server: %v", err)
		}
		return
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	<-errc
	log.Printf("HTTP server routine stopped")
}
