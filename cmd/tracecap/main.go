// tracecap replays a binary capture stream through the event processing core
// and emits the reconstructed timeline as text and, optionally, as
// OpenTelemetry spans.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"tracecap/internal/capture"
	"tracecap/internal/config"
	"tracecap/internal/eventprocessor"
	"tracecap/internal/eventstream"
	"tracecap/internal/filter"
	"tracecap/internal/otel"
	"tracecap/internal/output"
	"tracecap/internal/timesync"
	"tracecap/internal/wire"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagInput       string
	flagQuiet       bool
	flagFilter      string
	flagAttrs       []string
	flagExportSpans bool
)

var rootCmd = &cobra.Command{
	Use:   "tracecap",
	Short: "Process a profiling capture stream",
	Long: `tracecap reads a stream of capture events (from a file or stdin),
runs them through the processing core, and prints the reconstructed
timers, callstacks and thread states. With --export-spans the interval
timers are additionally exported as OpenTelemetry spans over OTLP.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
	RunE:         runCapture,
}

func init() {
	rootCmd.Flags().StringVarP(&flagInput, "input", "i", "", "capture stream source: file path, or - for stdin (default $TRACECAP_INPUT or -)")
	rootCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress the text output")
	rootCmd.Flags().StringVar(&flagFilter, "filter", "", "expression gating which timers are exported (default $TRACECAP_FILTER)")
	rootCmd.Flags().StringArrayVar(&flagAttrs, "attr", nil, "custom span attribute as name=expression (repeatable)")
	rootCmd.Flags().BoolVar(&flagExportSpans, "export-spans", false, "export interval timers as OTLP spans")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// buildConfig merges environment defaults with command-line flags; flags win.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("input") {
		cfg.Input = flagInput
	}
	if cmd.Flags().Changed("filter") {
		cfg.Filter = flagFilter
	}
	cfg.Quiet = flagQuiet
	cfg.ExportSpans = flagExportSpans
	if err := cfg.AddCustomAttributes(flagAttrs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL() (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(otelCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(tp, shutdownCtx); err != nil {
			log.Printf("Error shutting down OTEL provider: %v", err)
		}
	}

	return tp.Tracer("tracecap"), cleanup, nil
}

// openInput resolves the capture source. "-" means stdin.
func openInput(source string) (io.ReadCloser, error) {
	if source == "-" || source == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening capture input: %w", err)
	}
	return f, nil
}

// buildListeners assembles the listener chain from the configuration.
func buildListeners(cfg *config.Config, tracer trace.Tracer) (capture.Listener, error) {
	var listeners output.Fanout

	if !cfg.Quiet {
		listeners = append(listeners, output.NewTextFormatter(os.Stdout))
	}

	if cfg.ExportSpans {
		evaluator, err := filter.NewEvaluator(cfg.Filter, cfg.CustomAttributes)
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter: %w", err)
		}
		converter := timesync.NewConverterFromBootTime()
		listeners = append(listeners, output.NewSpanFormatter(tracer, converter, evaluator))
	}

	return listeners, nil
}

func runCapture(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	var tracer trace.Tracer
	if cfg.ExportSpans {
		t, cleanup, err := setupOTEL()
		if err != nil {
			return err
		}
		defer cleanup()
		tracer = t
	}

	in, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Printf("Error closing input: %v", err)
		}
	}()

	listeners, err := buildListeners(cfg, tracer)
	if err != nil {
		return err
	}

	processor := eventprocessor.NewProcessor(listeners)
	stream := eventstream.New(wire.NewDecoder(in), processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return stream.Run(ctx)
}
