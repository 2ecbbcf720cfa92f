package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/sushant-115/stratadb/api/remote"
	"github.com/sushant-115/stratadb/core/environment"
	"github.com/sushant-115/stratadb/core/security/encryption/internaltls"
	internaltelemetry "github.com/sushant-115/stratadb/internal/telemetry"
	"github.com/sushant-115/stratadb/pkg/logger"
	"github.com/sushant-115/stratadb/pkg/telemetry"
)

// serveConfig is the processed configuration of the serve command.
type serveConfig struct {
	Path     string
	Name     string
	Create   bool
	GrpcAddr string
	HttpAddr string
	TLS      internaltls.Files

	Env       environment.Config
	Logger    logger.Config
	Telemetry telemetry.Config
}

var (
	serveCmdConfig = &serveConfig{}
	serveCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the StrataDB server",
		Long: `Start the StrataDB server with the specified configuration. The configuration can be set via
command line flags, a config file or environment variables. The format of the environment
variables is STRATADB_<flag> (e.g. STRATADB_CACHE_SIZE=4194304)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "path"
	serveCmd.PersistentFlags().String(key, "stratadb.db", "environment file to serve")

	key = "name"
	serveCmd.PersistentFlags().String(key, "default", "name clients connect to")

	key = "create"
	serveCmd.PersistentFlags().Bool(key, true, "create the environment when the file does not exist")

	key = "flags"
	serveCmd.PersistentFlags().String(key, "auto-recovery", "comma separated environment flags (transactions, auto-recovery, fsync, crc32, in-memory, read-only, disable-recovery)")

	key = "page-size"
	serveCmd.PersistentFlags().Int(key, 0, "page size of a new environment (0 selects the default)")

	key = "cache-size"
	serveCmd.PersistentFlags().Uint64(key, 0, "page cache budget in bytes (0 selects the default)")

	key = "max-databases"
	serveCmd.PersistentFlags().Int(key, 0, "database limit of a new environment (0 selects the default)")

	key = "log-dir"
	serveCmd.PersistentFlags().String(key, "", "journal directory (defaults to <path>.wal)")

	key = "journal-compression"
	serveCmd.PersistentFlags().String(key, "none", "journal record compression (none, snappy, lz4)")

	key = "flush-interval"
	serveCmd.PersistentFlags().Duration(key, 0, "periodic checkpoint interval (0 disables)")

	key = "checkpoint-rate"
	serveCmd.PersistentFlags().Int64(key, 0, "checkpoint write limit in bytes per second (0 is unlimited)")

	key = "encryption-key"
	serveCmd.PersistentFlags().String(key, "", "hex encoded AES key; prefer STRATADB_ENCRYPTION_KEY")

	key = "grpc-addr"
	serveCmd.PersistentFlags().String(key, "0.0.0.0:7070", "address of the gRPC listener")

	key = "http-addr"
	serveCmd.PersistentFlags().String(key, "0.0.0.0:9090", "address of the Prometheus /metrics endpoint")

	key = "tls-ca"
	serveCmd.PersistentFlags().String(key, "", "CA certificate that signs client certificates; enables mutual TLS")

	key = "tls-cert"
	serveCmd.PersistentFlags().String(key, "", "server certificate")

	key = "tls-key"
	serveCmd.PersistentFlags().String(key, "", "server private key")

	key = "log-level"
	serveCmd.PersistentFlags().String(key, "info", "log level (debug, info, warn, error)")

	key = "log-format"
	serveCmd.PersistentFlags().String(key, "json", "log format (json, console)")

	key = "log-file"
	serveCmd.PersistentFlags().String(key, "stdout", "log destination (stdout, stderr or a file)")

	key = "telemetry"
	serveCmd.PersistentFlags().Bool(key, true, "export metrics and traces")

	key = "trace-sample-ratio"
	serveCmd.PersistentFlags().Float64(key, 0.01, "fraction of traces to sample")
}

// processConfig reads flags, the config file and environment variables into
// serveCmdConfig.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	flags, err := environment.ParseFlags(viper.GetString("flags"))
	if err != nil {
		return err
	}

	var key []byte
	if s := viper.GetString("encryption-key"); s != "" {
		if key, err = hex.DecodeString(s); err != nil {
			return fmt.Errorf("invalid encryption key: %v", err)
		}
	}

	serveCmdConfig.Path = viper.GetString("path")
	serveCmdConfig.Name = viper.GetString("name")
	serveCmdConfig.Create = viper.GetBool("create")
	serveCmdConfig.GrpcAddr = viper.GetString("grpc-addr")
	serveCmdConfig.HttpAddr = viper.GetString("http-addr")
	serveCmdConfig.TLS = internaltls.Files{
		CA:   viper.GetString("tls-ca"),
		Cert: viper.GetString("tls-cert"),
		Key:  viper.GetString("tls-key"),
	}
	serveCmdConfig.Env = environment.Config{
		Flags:              flags,
		PageSize:           viper.GetInt("page-size"),
		CacheSize:          viper.GetUint64("cache-size"),
		MaxDatabases:       viper.GetInt("max-databases"),
		LogDir:             viper.GetString("log-dir"),
		JournalCompression: viper.GetString("journal-compression"),
		FlushInterval:      viper.GetDuration("flush-interval"),
		CheckpointRate:     viper.GetInt64("checkpoint-rate"),
		EncryptionKey:      key,
	}
	serveCmdConfig.Logger = logger.Config{
		Level:      viper.GetString("log-level"),
		Format:     viper.GetString("log-format"),
		OutputFile: viper.GetString("log-file"),
	}
	serveCmdConfig.Telemetry = telemetry.Config{
		Enabled:          viper.GetBool("telemetry"),
		ServiceName:      "stratadb",
		ServiceVersion:   Version,
		SetGlobal:        true,
		TraceSampleRatio: viper.GetFloat64("trace-sample-ratio"),
	}

	if serveCmdConfig.Name == "" {
		return errors.New("name must not be empty")
	}
	if serveCmdConfig.Env.Flags&environment.InMemory == 0 && serveCmdConfig.Path == "" {
		return errors.New("path is required for file environments")
	}
	return nil
}

// openEnvironment opens the configured environment, creating it when the
// file is missing and creation is allowed.
func openEnvironment(cfg *serveConfig, zlogger *zap.Logger) (*environment.Environment, error) {
	if cfg.Env.Flags&environment.InMemory != 0 {
		zlogger.Info("Creating in-memory environment")
		return environment.Create(cfg.Path, cfg.Env)
	}
	if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
		if !cfg.Create {
			return nil, fmt.Errorf("environment %s does not exist", cfg.Path)
		}
		zlogger.Info("Creating environment", zap.String("path", cfg.Path))
		return environment.Create(cfg.Path, cfg.Env)
	}
	zlogger.Info("Opening environment", zap.String("path", cfg.Path), zap.Stringer("flags", cfg.Env.Flags))
	return environment.Open(cfg.Path, cfg.Env)
}

// run starts the gRPC server and the metrics endpoint and blocks until a
// shutdown signal arrives or one of them fails.
func run(cmd *cobra.Command, _ []string) error {
	cfg := serveCmdConfig

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zlogger.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			zlogger.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	engineMetrics, err := internaltelemetry.NewEngineMetrics(tel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create engine metrics: %w", err)
	}
	cfg.Env.Logger = zlogger.Named("engine")
	cfg.Env.Metrics = engineMetrics
	cfg.Env.Tracer = tel.Tracer

	env, err := openEnvironment(cfg, zlogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			zlogger.Error("Error closing environment", zap.Error(err))
		}
	}()

	srv, err := remote.NewServer(tel, zlogger.Named("remote"))
	if err != nil {
		return err
	}
	defer srv.Close()
	if err := srv.AddEnvironment(cfg.Name, env); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GrpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GrpcAddr, err)
	}
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(srv.UnaryInterceptor())}
	if cfg.TLS.Enabled() {
		tlsConfig, err := internaltls.LoadServerConfig(cfg.TLS)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		zlogger.Info("Mutual TLS enabled", zap.String("ca", cfg.TLS.CA))
	}
	grpcServer := grpc.NewServer(opts...)
	srv.Register(grpcServer)

	var httpServer *http.Server
	if tel.MetricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.MetricsHandler)
		httpServer = &http.Server{Addr: cfg.HttpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlogger.Info("gRPC server listening", zap.String("address", cfg.GrpcAddr))
		return grpcServer.Serve(lis)
	})
	if httpServer != nil {
		g.Go(func() error {
			zlogger.Info("Metrics endpoint listening", zap.String("address", cfg.HttpAddr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		zlogger.Info("Shutting down server")
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zlogger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	zlogger.Info("Server stopped")
	return nil
}
