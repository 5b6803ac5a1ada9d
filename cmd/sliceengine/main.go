// Command sliceengine wires the slicing core (internal/engine) to a
// standalone host-controller loop and exposes the admin gRPC surface,
// mirroring the way the teacher's cmd/server/main.go assembles its
// control plane out of independently testable packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nec-oss/sliceengine/internal/adminapi"
	"github.com/nec-oss/sliceengine/internal/engine"
	"github.com/nec-oss/sliceengine/internal/engineconfig"
	"github.com/nec-oss/sliceengine/internal/forwarding"
	"github.com/nec-oss/sliceengine/internal/hostctl"
	"github.com/nec-oss/sliceengine/internal/logx"
)

func main() {
	configPath := flag.String("config", "sliceengine.yaml", "path to the engine's YAML operating config")
	flag.Parse()

	log := logx.Default
	if err := run(*configPath, log); err != nil {
		log.Errorf("sliceengine: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, log *logx.Logger) error {
	cfg, err := engineconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.SliceDBPath == "" {
		return fmt.Errorf("config: slice_db_path must be set")
	}

	mode, err := cfg.ModeBits()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host := hostctl.NewLoop()
	defer host.Close()

	eng := engine.New(log)
	if err := eng.Init(ctx, cfg.SliceDBPath, mode, host, forwarding.NoopControl{Log: log}); err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer eng.Finalize()

	if !eng.AddFileModificationWatch(cfg.SliceDBPath, func(interface{}) {
		log.Infof("sliceengine: slice definition file changed, reconciling immediately")
		eng.ReconcileNow(ctx)
	}, nil) {
		log.Warnf("sliceengine: failed to watch %s for changes; relying on the 2s poll tick only", cfg.SliceDBPath)
	}

	watcher, err := engineconfig.NewWatcher(configPath, log)
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	go func() {
		if err := watcher.Start(); err != nil {
			log.Warnf("sliceengine: config watcher stopped: %v", err)
		}
	}()
	go func() {
		for updated := range watcher.Updates() {
			log.Infof("sliceengine: config changed (admin_listen_addr=%s, mode=%v); restart to apply",
				updated.AdminListenAddr, updated.Mode)
		}
	}()

	addr := cfg.AdminListenAddr
	if addr == "" {
		addr = "127.0.0.1:9443"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	grpcServer := adminapi.NewGRPCServer(eng, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()
	log.Infof("sliceengine: admin api listening on %s", addr)

	select {
	case <-ctx.Done():
		log.Infof("sliceengine: shutting down")
		grpcServer.GracefulStop()
		return nil
	case err := <-serveErr:
		return fmt.Errorf("admin api server: %w", err)
	}
}
