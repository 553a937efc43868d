// Package main provides cachectl, a small host for the expiring cache: every
// invocation loads the cache, runs one command and flushes it back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"expiring-cache/internal/cache"
	"expiring-cache/internal/config"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	v      *viper.Viper
	logger *log.Logger

	cfg     config.Config
	cc      *config.CacheConfig
	store   *cache.Store
	closeFn func() error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "cachectl"})}

	rootCmd := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and edit a file-backed expiring cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("dir", "", "cache directory (default: user data dir)")
	flags.String("backend", "", "snapshot backend: json, zstd or sqlite")
	flags.String("declarations", "", "declaration policy: overwrite or preserve")
	flags.String("errors", "", "error policy: degrade or propagate")
	flags.Bool("debug", false, "enable debug logging")

	for _, name := range []string{"dir", "backend", "declarations", "errors", "debug"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		getCmd(a),
		setCmd(a),
		rmCmd(a),
		keysCmd(a),
		purgeCmd(a),
		statsCmd(a),
		configCmd(a),
	)
	return rootCmd, a
}

// execute runs one invocation. The store is flushed and closed even when the
// command fails, since cobra skips post-run hooks after an error.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd, a := newRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, a.close(ctx))
}

// open resolves the configuration and loads the store.
func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrInvalidConfig) {
		return err
	}
	if v := a.v.GetString("dir"); v != "" {
		cfg.Dir = v
	}
	if v := a.v.GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v := a.v.GetString("declarations"); v != "" {
		cfg.Declarations = v
	}
	if v := a.v.GetString("errors"); v != "" {
		cfg.Errors = v
	}
	if a.v.GetBool("debug") {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Debug {
		a.logger.SetLevel(log.DebugLevel)
	}
	a.cfg = cfg

	a.cc, err = config.LoadCacheConfig(cfg.CacheConfigPath())
	if err != nil {
		a.logger.Warn("ignoring cache config", "path", cfg.CacheConfigPath(), "err", err)
	}

	a.store, a.closeFn, err = cfg.NewStore(a.cc, nil, a.logger)
	if err != nil {
		return err
	}
	a.logger.Debug("loading cache", "path", cfg.SnapshotPath(), "backend", cfg.Backend)
	return a.store.Load(ctx)
}

// close flushes the store and releases the backend. It is a no-op once the
// store is closed or if it was never opened.
func (a *app) close(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	err := a.store.Flush(ctx)
	if cerr := a.closeFn(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	a.store, a.closeFn = nil, nil
	return err
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
