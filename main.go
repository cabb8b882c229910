// vitalscan is the headless scan engine and reference CLI for the health
// scanning flows: pulse measurement from fingertip video, food photo
// analysis, barcode lookup, scan history, and the chat assistant.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vitalscan/assistant"
	"vitalscan/capture"
	"vitalscan/core"
	"vitalscan/history"
	"vitalscan/logging"
	"vitalscan/nutrition"
	"vitalscan/ppg"
	"vitalscan/pulse"
	"vitalscan/shutdown"
	"vitalscan/spool"
)

const usageText = `Usage: vitalscan <command> [flags]

Commands:
  measure  -video <file>    measure heart rate from a pre-captured clip
  watch                     process clips dropped into the spool directory
  history  [-n <count>]     show recent scans
  food     <photo>          analyze a food photo
  barcode  <code>           look up a product barcode
  chat     [-report <pdf>]  talk to the health assistant
  service  [action]         run or control the spool worker service
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	isDev := os.Getenv("ENVIRONMENT") != "production"
	logger, err := logging.NewLogger(isDev, getEnvOrDefault("LOG_FILE", "logs/vitalscan.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return core.ExitCodeError
	}
	defer logger.Sync()

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return core.ExitCodeError
	}

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return core.ExitCodeError
	}

	command, rest := args[0], args[1:]

	// The service manager has no console; skip the interactive check output.
	if command != "service" {
		if result := core.NewValidationSuite(cfg).Validate(); !result.Success {
			return core.ExitCodeError
		}
	}

	switch command {
	case "measure":
		return runMeasure(cfg, logger, rest)
	case "watch":
		return runWatch(cfg, logger)
	case "history":
		return runHistory(cfg, logger, rest)
	case "food":
		return runFood(cfg, logger, rest)
	case "barcode":
		return runBarcode(cfg, logger, rest)
	case "chat":
		return runChat(cfg, logger, rest)
	case "service":
		return runService(cfg, logger, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usageText)
		return core.ExitCodeError
	}
}

// hostAuthority is the permission source on hosts without a camera
// permission system: running the binary is the grant.
type hostAuthority struct{}

func (hostAuthority) Check() capture.PermissionState { return capture.PermissionGranted }
func (hostAuthority) Request(ctx context.Context) (capture.PermissionState, error) {
	return capture.PermissionGranted, nil
}

func runMeasure(cfg *core.Config, logger *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("measure", flag.ExitOnError)
	video := fs.String("video", "", "pre-captured fingertip clip to measure")
	fs.Parse(args)

	if *video == "" {
		fmt.Fprintln(os.Stderr, "measure requires -video <file>")
		return core.ExitCodeError
	}
	if cfg.AnalyzeURL == "" {
		fmt.Fprintln(os.Stderr, "ANALYZE_URL is not configured")
		return core.ExitCodeError
	}

	store, closeStore, err := openHistory(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history unavailable: %v\n", err)
		return core.ExitCodeError
	}
	defer closeStore()

	recorder := capture.NewFileRecorder(*video, cfg.TempDir)
	gate := capture.NewGate(hostAuthority{}, logger)
	analyzer := ppg.NewClientFromConfig(cfg, logger)
	ctrl := pulse.NewController(gate, recorder, analyzer, store, cfg.RecordDuration, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Measuring...")
	result, err := ctrl.Measure(ctx)
	if err != nil {
		if errors.Is(err, pulse.ErrMeasurementCancelled) {
			return core.ExitCodeSIGINT
		}
		fmt.Fprintln(os.Stderr, pulse.UserMessage(err))
		return core.ExitCodeError
	}

	fmt.Println(pulse.FormatBPM(result.BPM))
	return core.ExitCodeSuccess
}

func runWatch(cfg *core.Config, logger *logging.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runWatchLoop(ctx, cfg, logger)
}

// runWatchLoop drives the spool watcher until ctx is cancelled. Shared by
// the watch command and the service wrapper.
func runWatchLoop(ctx context.Context, cfg *core.Config, logger *logging.Logger) int {
	if cfg.SpoolDir == "" {
		fmt.Fprintln(os.Stderr, "SPOOL_DIR is not configured")
		return core.ExitCodeError
	}
	if cfg.AnalyzeURL == "" {
		fmt.Fprintln(os.Stderr, "ANALYZE_URL is not configured")
		return core.ExitCodeError
	}

	store, closeStore, err := openHistory(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history unavailable: %v\n", err)
		return core.ExitCodeError
	}

	reg := shutdown.NewRegistry(logger)
	reg.Register("history database", shutdown.PriorityDatabase, func(context.Context) error {
		closeStore()
		return nil
	})
	reg.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		// Sync on a console writer can fail harmlessly; nothing to do about it.
		_ = logger.Sync()
		return nil
	})
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		reg.Shutdown(shCtx)
	}()

	analyzer := ppg.NewClientFromConfig(cfg, logger)

	handler := func(ctx context.Context, path string) error {
		result, err := analyzer.Analyze(ctx, capture.NewVideoHandle(path), nil)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", path, pulse.FormatBPM(result.BPM))
		if err := store.AppendPulse(ctx, result.BPM, result.CapturedAt); err != nil {
			logger.Warn("history append failed", zap.Error(err))
		}
		return nil
	}

	watcher, err := spool.NewWatcher(cfg.SpoolDir, cfg.SpoolSettle, handler, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return core.ExitCodeError
	}

	if err := watcher.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

func runHistory(cfg *core.Config, logger *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	count := fs.Int("n", 10, "number of entries to show")
	fs.Parse(args)

	store, closeStore, err := openHistory(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history unavailable: %v\n", err)
		return core.ExitCodeError
	}
	defer closeStore()

	entries, err := store.Recent(context.Background(), *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return core.ExitCodeError
	}
	if len(entries) == 0 {
		fmt.Println("No scans yet.")
		return core.ExitCodeSuccess
	}

	for _, entry := range entries {
		when := entry.CapturedAt.Local().Format("2006-01-02 15:04")
		switch entry.Kind {
		case history.KindPulse:
			fmt.Printf("%s  pulse      %s\n", when, pulse.FormatBPM(entry.BPM))
		case history.KindNutrition:
			fmt.Printf("%s  nutrition  %s\n", when, entry.Payload)
		}
	}
	return core.ExitCodeSuccess
}

func runFood(cfg *core.Config, logger *logging.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "food requires a photo path")
		return core.ExitCodeError
	}

	photo, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return core.ExitCodeError
	}

	store, closeStore, err := openHistory(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history unavailable: %v\n", err)
		return core.ExitCodeError
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := nutrition.NewClientFromConfig(cfg, logger)
	analysis, err := client.AnalyzePhoto(ctx, photo)
	if err != nil {
		fmt.Fprintln(os.Stderr, pulse.UserMessage(err))
		return core.ExitCodeError
	}

	for _, food := range analysis.Foods {
		fmt.Printf("%-24s %-12s %6.0f kcal\n", food.Name, food.Quantity, food.Calories)
	}
	fmt.Println(analysis.Summary())

	if err := store.AppendNutrition(ctx, analysis.Summary(), analysis.CapturedAt); err != nil {
		logger.Warn("history append failed", zap.Error(err))
	}
	return core.ExitCodeSuccess
}

func runBarcode(cfg *core.Config, logger *logging.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "barcode requires a product code")
		return core.ExitCodeError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := nutrition.NewClientFromConfig(cfg, logger)
	product, err := client.LookupBarcode(ctx, args[0])
	if err != nil {
		if errors.Is(err, nutrition.ErrProductNotFound) {
			fmt.Println("Product not found.")
			return core.ExitCodeError
		}
		fmt.Fprintln(os.Stderr, pulse.UserMessage(err))
		return core.ExitCodeError
	}

	fmt.Printf("%s", product.Name)
	if product.Brand != "" {
		fmt.Printf(" (%s)", product.Brand)
	}
	fmt.Println()
	fmt.Printf("Per 100g: %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat\n",
		product.Calories, product.Protein, product.Carbs, product.Fat)
	return core.ExitCodeSuccess
}

func runChat(cfg *core.Config, logger *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	report := fs.String("report", "", "PDF health report to share with the assistant")
	fs.Parse(args)

	client, err := assistant.NewClient(cfg, logger)
	if err != nil {
		if errors.Is(err, assistant.ErrNotConfigured) {
			fmt.Fprintln(os.Stderr, "set ASSISTANT_API_KEY to enable the chat assistant")
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return core.ExitCodeError
	}

	conv := client.NewConversation()
	if *report != "" {
		if err := conv.AttachReport(*report); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return core.ExitCodeError
		}
		fmt.Println("Report attached.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(`Ask about your scans. Type "exit" to quit.`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		reply, err := conv.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return core.ExitCodeSIGINT
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		fmt.Println(reply)
	}
	return core.ExitCodeSuccess
}

// openHistory connects, migrates, and returns the store plus its closer.
func openHistory(cfg *core.Config, logger *logging.Logger) (*history.Store, func(), error) {
	db, err := history.Connect(cfg.HistoryDBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := history.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	closer := func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing history database", zap.Error(err))
		}
	}
	return history.NewStore(db, cfg.HistoryLimit), closer, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// shutdownGrace bounds how long the service wrapper waits for in-flight
// work when the service manager stops it.
const shutdownGrace = 30 * time.Second
