// Command server is kvd's TCP front end: it opens one of the two
// conforming engines, wires it to one of the three thread-pool variants,
// and serves the wire protocol described in §4.7 until interrupted.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kvd/core"
	"kvd/internal/boltengine"
	"kvd/internal/engine"
	"kvd/internal/pool"
	"kvd/internal/server"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  server --addr HOST:PORT --engine {kvd|bolt} --pool {naive|shared|stealing} --dir PATH\n")
	os.Exit(1)
}

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:4000", "TCP listen address")
		engineName = flag.String("engine", "kvd", "storage engine: kvd | bolt")
		poolName   = flag.String("pool", "shared", "thread pool: naive | shared | stealing")
		dir        = flag.String("dir", ".", "data directory")
		workers    = flag.Uint("workers", 4, "logical worker count for the shared/stealing pools")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	eng, err := openEngine(*engineName, *dir, logger)
	if err != nil {
		logger.Printf("unrecognized --engine %q: %v", *engineName, err)
		usage()
	}
	defer eng.Close()

	p, err := pool.New(pool.Kind(*poolName), *workers)
	if err != nil {
		logger.Printf("unrecognized --pool %q: %v", *poolName, err)
		usage()
	}

	srv := server.New(*addr, eng, p, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case sig := <-sigCh:
		logger.Printf("received %v, shutting down", sig)
		_ = srv.Close()
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("server: %v", err)
		}
	}
}

func openEngine(name, dir string, logger *log.Logger) (engine.Engine, error) {
	switch engine.Kind(name) {
	case engine.KindKV:
		return core.Open(dir, core.WithLogger(logger))
	case engine.KindBolt:
		return boltengine.Open(dir)
	default:
		return nil, fmt.Errorf("must be %q or %q", engine.KindKV, engine.KindBolt)
	}
}
