package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cmdrvl/rvl/internal/server"
	"github.com/cmdrvl/rvl/pkg/config"
	"github.com/cmdrvl/rvl/pkg/logger"
	"github.com/cmdrvl/rvl/pkg/pipeline"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	level := "error"
	if env := os.Getenv("RVL_LOG_LEVEL"); env != "" {
		level = env
	}
	if err := logger.Init(logger.Config{Level: level}); err != nil {
		fmt.Fprintf(os.Stderr, "rvl: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var thresholdFlag, toleranceFlag float64
	var keyFlag, delimiterFlag string
	var jsonFlag bool

	root := &cobra.Command{
		Use:           "rvl <old.csv> <new.csv>",
		Short:         "Reveal the smallest set of numeric changes that explain what actually changed.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := buildSettings(thresholdFlag, toleranceFlag, keyFlag, delimiterFlag, jsonFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				settings.Threshold = thresholdFlag
			}
			if cmd.Flags().Changed("tolerance") {
				settings.Tolerance = toleranceFlag
			}

			result, err := pipeline.Run(pipeline.Request{
				OldPath:  args[0],
				NewPath:  args[1],
				Settings: settings,
			})
			if err != nil {
				return err
			}

			stream := os.Stdout
			if pipeline.OutputStream(result.Outcome, settings.JSON) == pipeline.Stderr {
				stream = os.Stderr
			}
			fmt.Fprintln(stream, result.Output)
			exitWith(pipeline.ExitCode(result.Outcome))
			return nil
		},
	}

	root.Flags().StringVar(&keyFlag, "key", "", "Align rows by this key column (otherwise align by row order)")
	root.Flags().Float64Var(&thresholdFlag, "threshold", config.DefaultThreshold, "Coverage target: 0 < x <= 1")
	root.Flags().Float64Var(&toleranceFlag, "tolerance", config.DefaultTolerance, "Per-cell noise floor: x >= 0")
	root.Flags().StringVar(&delimiterFlag, "delimiter", "", "Force a CSV delimiter (comma/tab/semicolon/pipe/caret, 0xNN, or single ASCII byte)")
	root.Flags().BoolVar(&jsonFlag, "json", false, "Emit JSON output (single object)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rvl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the comparison REST API",
		Long: `Serve HTTP endpoints for CSV comparison: GET /health, GET /metrics,
and POST /compare (multipart form with old and new files).

Environment variables:
  RVL_PORT       Port to listen on (default: 8080)
  RVL_HOST       Host to bind to (default: 0.0.0.0)
  RVL_API_TOKEN  Bearer token; when set POST /compare requests must carry it
                 (/health and /metrics stay open)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(server.ConfigFromEnv())
		},
	}
	root.AddCommand(serveCmd)

	defer func() { _ = logger.Sync() }()

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rvl: %v\n", err)
		return 2
	}
	return 0
}

// buildSettings resolves defaults file, env, and flags into run settings.
func buildSettings(threshold, tolerance float64, key, delimiter string, jsonMode bool) (config.Settings, error) {
	settings := config.NewSettings()

	if path := os.Getenv("RVL_CONFIG"); path != "" {
		if err := settings.LoadDefaults(path); err != nil {
			return config.Settings{}, err
		}
	}

	if threshold != config.DefaultThreshold {
		settings.Threshold = threshold
	}
	if tolerance != config.DefaultTolerance {
		settings.Tolerance = tolerance
	}
	settings.Key = key
	settings.JSON = jsonMode

	if delimiter != "" {
		parsed, err := config.ParseDelimiter(delimiter)
		if err != nil {
			return config.Settings{}, err
		}
		settings.Delimiter = parsed
		settings.HasDelimiter = true
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func exitWith(code int) {
	_ = logger.Sync()
	os.Exit(code)
}
