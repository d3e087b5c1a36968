package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/logger"
	"github.com/banux/nxt-shelf/internal/server"
	"github.com/banux/nxt-shelf/web"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noLookup bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger()
			lib, err := ctx.openLibrary(runCtx)
			if err != nil {
				return err
			}

			if cfg.Password == "" {
				log.Warn("AUTH_PASSWORD is not set, authentication is disabled")
			}
			opts := server.Options{
				Password:        cfg.Password,
				StaticFS:        web.FS,
				Logger:          log,
				ScanQuietPeriod: cfg.ScanQuietPeriod,
			}
			var srv *server.Server
			if noLookup {
				srv = server.New(lib, nil, opts)
			} else {
				srv = server.New(lib, ctx.lookuper(), opts)
			}
			defer srv.Close()

			httpSrv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info("nxt-shelf listening",
					logger.String("addr", cfg.ListenAddr),
					logger.Int("books", lib.Len()))
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-runCtx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noLookup, "no-lookup", false, "Disable ISBN lookup and intake endpoints")
	return cmd
}
