// Package cli implements the nxt-shelf command tree.
package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/config"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/isbn/openlibrary"
	"github.com/banux/nxt-shelf/internal/library"
	"github.com/banux/nxt-shelf/internal/logger"
)

// NewRootCommand builds the nxt-shelf command tree.
func NewRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "nxt-shelf",
		Short:         "Track the books you own and read",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newLookupCommand(ctx))
	rootCmd.AddCommand(newIntakeCommand(ctx))
	return rootCmd
}

// commandContext lazily builds the shared pieces every command needs.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error

	logOnce sync.Once
	log     logger.Logger

	mu      sync.Mutex
	closers []func() error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			path = config.FindConfigFile()
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() logger.Logger {
	c.logOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		c.log = logger.New(cfg.LogLevel, cfg.PrettyLog)
	})
	return c.log
}

// openLibrary connects the configured backend and loads the collection.
func (c *commandContext) openLibrary(ctx context.Context) (*library.Library, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg, c.logger())
	if err != nil {
		return nil, err
	}
	c.onClose(backend.Close)

	lib := library.New(backend, c.logger())
	lib.LoadAll(ctx)
	return lib, nil
}

// lookuper returns the external endpoint client when one is configured,
// otherwise an Open Library provider.
func (c *commandContext) lookuper() isbn.Lookuper {
	cfg, _ := c.ensureConfig()
	if cfg.LookupURL != "" {
		return isbn.NewClient(cfg.LookupURL, cfg.LookupTimeout)
	}
	return openlibrary.New(openlibrary.Options{
		BaseURL:    cfg.OpenLibraryURL,
		Timeout:    cfg.LookupTimeout,
		RPS:        cfg.LookupRPS,
		MaxRetries: cfg.LookupRetries,
	}, c.logger())
}

func (c *commandContext) onClose(fn func() error) {
	c.mu.Lock()
	c.closers = append(c.closers, fn)
	c.mu.Unlock()
}

func (c *commandContext) close() {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
}
