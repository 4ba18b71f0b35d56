// Command gomemcached-server runs a drop-in-compatible, in-memory
// key/value cache speaking the memcached text protocol (spec.md §1).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/ketralnis/gomemcached/internal/clock"
	"github.com/ketralnis/gomemcached/internal/config"
	"github.com/ketralnis/gomemcached/internal/server"
	"github.com/ketralnis/gomemcached/internal/store"
	"github.com/ketralnis/gomemcached/internal/version"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:     "gomemcached-server",
	Short:   "An in-memory key/value cache speaking the memcached text protocol",
	Version: version.Version,
	RunE:    runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gomemcached-server v%s\n", version.Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		fmt.Println(cfg.String())
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("host", "H", "0.0.0.0", "address to bind to")
	flags.IntP("port", "p", 11211, "port to listen on")
	flags.String("max-memory", "64MB", "maximum cache size (e.g. 64MB, 1GB)")
	flags.Int("max-clients", 1024, "maximum number of simultaneous connections")
	flags.Int("max-line-length", 4096, "maximum accepted command line length in bytes")
	flags.Duration("read-timeout", 30*time.Second, "idle read timeout (0 disables)")
	flags.Duration("write-timeout", 30*time.Second, "idle write timeout (0 disables)")
	flags.Bool("tcp-keepalive", true, "enable TCP keepalive on accepted connections")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	bindings := map[string]string{
		"host": "host", "port": "port", "max-memory": "max_memory",
		"max-clients": "max_clients", "max-line-length": "max_line_length",
		"read-timeout": "read_timeout", "write-timeout": "write_timeout",
		"tcp-keepalive": "tcp_keepalive", "log-level": "log_level", "log-format": "log_format",
	}
	for flagName, key := range bindings {
		v.BindPFlag(key, flags.Lookup(flagName))
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, atomicLevel, err := server.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Live-adjustable log level is a realistic ops convenience riding on
	// fsnotify (viper's config-file watcher), not a spec requirement;
	// max_bytes stays fixed for the process lifetime.
	v.OnConfigChange(func(_ fsnotify.Event) {
		newLevel := v.GetString("log_level")
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(newLevel)); err != nil {
			logger.Warnw("config file changed: ignoring invalid log_level", "log_level", newLevel, "error", err)
			return
		}
		atomicLevel.SetLevel(zapLevel)
		logger.Infow("config file changed: log level adjusted", "log_level", newLevel)
	})
	v.WatchConfig()

	maxBytes, err := cfg.MaxBytes()
	if err != nil {
		return err
	}

	st := store.New(clock.System{}, maxBytes, logger)
	srv := server.New(cfg, st, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig.String())
		srv.Shutdown()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
