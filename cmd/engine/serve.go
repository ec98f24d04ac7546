package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/httpapi"
	"jobfeed-engine/internal/poll"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sync loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		noPoll, _ := cmd.Flags().GetBool("no-poll")
		port, _ := cmd.Flags().GetInt("port")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		seeds, err := config.LoadSeedSources(filepath.Join(a.dataDir, "sources.yml"))
		if err != nil {
			return fmt.Errorf("sources.yml: %w", err)
		}
		if n, err := seedSources(ctx, a.db, seeds, time.Now()); err != nil {
			return fmt.Errorf("seed sources: %w", err)
		} else if n > 0 {
			log.Printf("[serve] seeded sources=%d", n)
		}

		poller := poll.New(a.db, a.eng, &a.cfgVal, a.hub)
		if !noPoll {
			poller.Start(ctx, time.Minute)
		}

		handler := httpapi.NewMux(httpapi.Deps{
			DB:          a.db,
			Engine:      a.eng,
			Poller:      poller,
			Hub:         a.hub,
			CfgVal:      &a.cfgVal,
			UserCfgPath: a.userCfgPath,
			LoadCfg:     func() (config.Config, error) { return config.Load(a.userCfgPath) },
		})

		token := os.Getenv("JOBFEED_SHUTDOWN_TOKEN")
		if token == "" {
			if token, err = randomToken(16); err != nil {
				return err
			}
		}
		handler.HandleFunc("/shutdown", shutdownHandler(token, stop))

		if port == 0 {
			port = a.config().App.Port
		}
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:           httpapi.Chain(handler, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog, httpapi.Cors),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("[serve] listening on http://%s (data=%s)", addr, a.dataDir)
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			log.Printf("[serve] shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default app.port from config)")
	serveCmd.Flags().Bool("no-poll", false, "disable the periodic sync loop")
}
