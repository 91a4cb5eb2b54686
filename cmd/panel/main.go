package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/cfg"
	"github.com/forgehost/panel/internal/engine"
	"github.com/forgehost/panel/internal/httpapi"
	"github.com/forgehost/panel/internal/logging"
	"github.com/forgehost/panel/internal/wsapi"
)

const (
	maxReadHeaderTimeout = 5 * time.Second
	maxReadTimeout       = 10 * time.Second
	maxWriteTimeout      = 0 // streaming responses (console logs, downloads) must not be cut off
	idleTimeout          = 120 * time.Second

	shutdownTimeout = 30 * time.Second
)

func newServer(ctx context.Context, c cfg.Config, eng *engine.Engine) *http.Server {
	router := httpapi.New(eng).Router()
	wsapi.New(eng).RegisterRoutes(router)

	return &http.Server{
		Addr:    c.ListenAddr,
		Handler: router,

		ReadHeaderTimeout: maxReadHeaderTimeout,
		ReadTimeout:       maxReadTimeout,
		WriteTimeout:      maxWriteTimeout,
		IdleTimeout:       idleTimeout,

		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var debug bool
	flag.BoolVar(&debug, "debug", false, "enable development logging")
	flag.Parse()

	log, err := logging.New(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	c, err := cfg.Parse()
	if err != nil {
		log.Error("failed to parse config", zap.Error(err))
		return 1
	}

	eng, err := engine.New(c, log)
	if err != nil {
		log.Error("failed to build engine", zap.Error(err))
		return 1
	}
	defer eng.Close()

	srv := newServer(ctx, c, eng)

	signalCtx, sigCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer sigCancel()

	exitCode := &atomic.Int32{}
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		log.Info("panel listening", zap.String("addr", c.ListenAddr))

		err := srv.ListenAndServe()
		switch {
		case errors.Is(err, http.ErrServerClosed):
			log.Info("panel shut down")
		case err != nil:
			exitCode.Add(1)
			log.Error("panel listener error", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-signalCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			exitCode.Add(1)
			log.Error("panel shutdown error", zap.Error(err))
		}
	}()

	wg.Wait()
	return int(exitCode.Load())
}

func main() {
	os.Exit(run())
}
