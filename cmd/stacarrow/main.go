package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoplex/stacarrow/pkg/config"
	"github.com/geoplex/stacarrow/pkg/convert"
	"github.com/geoplex/stacarrow/pkg/geoparquet"
	"github.com/geoplex/stacarrow/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "stacarrow",
		Short: "stacarrow - STAC items to columnar GeoParquet",
		Long: `stacarrow converts collections of STAC items (newline-delimited JSON,
JSON arrays, or FeatureCollections) into Arrow record batches and writes
them as GeoParquet with WKB-encoded geometries.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stacarrow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile, output, compression, logLevel string
	var chunkSize int

	convertCmd := &cobra.Command{
		Use:   "convert [input files...]",
		Short: "Convert STAC item files to a GeoParquet file",
		Long: `Convert one or more STAC item files to a single GeoParquet file.
Inputs may be newline-delimited JSON, a JSON array of items, or a GeoJSON
FeatureCollection, optionally gzip- or zstd-compressed. Without a supplied
schema the inputs are read twice: once to infer a common schema and once
to encode.

Example:
  stacarrow convert --output items.parquet items-*.ndjson`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{
				Inputs:      args,
				Output:      output,
				ChunkSize:   chunkSize,
				Compression: compression,
				Logging:     logger.Config{Level: logLevel, Encoding: "json"},
			}
			if configFile != "" {
				if err := config.Load(configFile, &cfg); err != nil {
					return err
				}
				// Explicitly set flags win over the config file.
				if len(args) > 0 {
					cfg.Inputs = args
				}
				if cmd.Flags().Changed("output") {
					cfg.Output = output
				}
				if cmd.Flags().Changed("chunk-size") {
					cfg.ChunkSize = chunkSize
				}
				if cmd.Flags().Changed("compression") {
					cfg.Compression = compression
				}
				if cmd.Flags().Changed("log-level") {
					cfg.Logging.Level = logLevel
				}
			}
			return runConvert(&cfg)
		},
	}

	convertCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file; explicitly set flags override its values")
	convertCmd.Flags().StringVarP(&output, "output", "o", "", "Path to the output GeoParquet file")
	convertCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Number of records per batch (default 65536 for files)")
	convertCmd.Flags().StringVar(&compression, "compression", "snappy", "Parquet compression codec (snappy, zstd, gzip, none)")
	convertCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(convertCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConvert(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	log := logger.With(
		zap.String("component", "stacarrow-cli"),
		zap.Strings("inputs", cfg.Inputs),
		zap.String("output", cfg.Output),
	)

	start := time.Now()
	log.Info("starting conversion",
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.String("compression", cfg.Compression))

	it, err := convert.Files(cfg.Inputs, convert.Options{
		ChunkSize: cfg.ChunkSize,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	if err := geoparquet.WriteFile(cfg.Output, it, geoparquet.Options{
		Compression: cfg.Compression,
		Logger:      log,
	}); err != nil {
		return err
	}

	log.Info("conversion complete",
		zap.Int("fields", it.Schema().NumFields()),
		zap.Duration("duration", time.Since(start)))
	return nil
}
