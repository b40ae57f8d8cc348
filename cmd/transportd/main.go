// Command transportd runs the transport simulation.
//
// Usage:
//
//	transportd [run]           simulate until interrupted
//	transportd setupdb         migrate the database schema
//	transportd generate        seed the demo dataset into the store
//	transportd export [entry]  print transport paths as GeoJSON
//	transportd upload [entry]  send transport paths to the viewer
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/transport/internal/config"
	"github.com/OCAP2/transport/internal/logging"
	intOtel "github.com/OCAP2/transport/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	Name string = "transportd"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is the zerolog logger of the database and influx managers
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFile     *os.File
	LogFilePath string

	SessionID        string    = uuid.NewString()
	SessionStartTime time.Time = time.Now()
)

func configDir() string {
	if dir := os.Getenv(config.EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "."
}

// setupLogging loads the config and builds every logger. It returns a
// cleanup func that flushes and closes the sinks.
func setupLogging() func() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir()); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs dir", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, Name, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if LogFile != nil {
			w = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.FromConfig(otelCfg, w))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var graylog io.Writer
	if viper.GetBool("graylog.enabled") {
		gw, err := gelf.NewWriter(viper.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to create GELF writer", "error", err)
		} else {
			graylog = gw
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	level := viper.GetString("logLevel")
	opts := logging.Options{
		Level:    level,
		Provider: otelLogProvider,
		Graylog:  graylog,
		Context:  logging.SessionContext(SessionID),
	}
	var zfile io.Writer
	if LogFile != nil {
		opts.File = LogFile
		zfile = LogFile
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	ZLogger = logging.NewZerolog(os.Stdout, zfile, level, logging.SessionContext(SessionID))

	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "build", BuildDate)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "log flush failed: %v\n", err)
		}
		if OTelProvider != nil {
			if err := OTelProvider.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "otel shutdown failed: %v\n", err)
			}
		}
		if c, ok := graylog.(io.Closer); ok {
			c.Close()
		}
		if LogFile != nil {
			LogFile.Close()
		}
	}
}

func main() {
	cleanup := setupLogging()
	err := run(os.Args[1:])
	if err != nil {
		Logger.Error("transportd failed", "error", err)
	}
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "run"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	switch cmd {
	case "run":
		return runSimulation(ctx)
	case "setupdb":
		st, err := openStorage()
		if err != nil {
			return err
		}
		defer st.Close()
		Logger.Info("DB setup complete.")
		return nil
	case "generate":
		return generate(ctx)
	case "export":
		return export(ctx, os.Stdout, args)
	case "upload":
		return upload(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// backupPath returns the influx backup file of this session.
func backupPath() string {
	return filepath.Join(
		viper.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.lp.gz", Name, SessionStartTime.Format("20060102_150405")),
	)
}
