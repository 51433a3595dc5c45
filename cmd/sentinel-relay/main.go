package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/sentinel-relay/internal/config"
	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/journal"
	"github.com/mattjoyce/sentinel-relay/internal/log"
	"github.com/mattjoyce/sentinel-relay/internal/normalize"
	"github.com/mattjoyce/sentinel-relay/internal/receiver"
	"github.com/mattjoyce/sentinel-relay/internal/signature"
	"gopkg.in/yaml.v3"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve", "start":
		return runServe(args)
	case "config":
		return runConfigNoun(args)
	case "deliveries":
		return runDeliveriesNoun(args)
	case "sign":
		return runSign(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`sentinel-relay - webhook relay into Log Analytics custom tables

Usage:
  sentinel-relay <command> [flags]

Commands:
  serve                 Run the HTTP receiver
  config check          Validate configuration and credentials
  config show           Print the effective configuration (key masked)
  config lock           Write .checksums for the config file
  config env            List environment overrides
  deliveries list       Show recent deliveries from the journal
  deliveries prune      Delete journal entries past retention
  sign                  Print the canonical string and Authorization header
  version               Show version information

Common flags:
  --config PATH         Config file or directory (default: discovered, else environment only)
`)
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("sentinel-relay %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// loadConfig loads path, or the discovered config file, or falls back to the
// environment alone when no file exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DiscoverConfig()
	}
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

func newRelay(cfg *config.Config, rec receiver.Recorder) *receiver.Relay {
	ingestLogger := log.WithComponent("ingest")
	fwd := ingest.New(cfg.IngestConfig(),
		ingest.WithClient(ingest.NewHTTPClient(cfg.Ingest.Timeout, ingestLogger)),
		ingest.WithLogger(ingestLogger),
	)
	return receiver.NewRelay(normalize.New(cfg.NormalizeOptions()), fwd, rec, log.WithComponent("relay"))
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("sentinel-relay starting", "version", version, "config", cfg.SourceFile)

	if err := cfg.ValidateCredentials(); err != nil {
		logger.Error("invalid workspace credentials", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec receiver.Recorder
	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer j.Close()
		logger.Info("journal opened", "path", cfg.Journal.Path)
		rec = j
		go runPruner(ctx, j, cfg.Journal.Retention, log.WithComponent("journal"))
	}

	srv := receiver.New(receiver.Config{
		Listen:          cfg.Listen,
		Path:            cfg.Receiver.Path,
		TypeParam:       cfg.Receiver.TypeParam,
		MaxBodySize:     cfg.Receiver.MaxBodyBytes,
		Secret:          cfg.Receiver.Secret,
		SignatureHeader: cfg.Receiver.SignatureHeader,
		ForwardTimeout:  cfg.Ingest.Timeout,
	}, newRelay(cfg, rec), log.WithComponent("receiver"))

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("receiver stopped", "error", err)
		return 1
	}
	logger.Info("sentinel-relay stopped")
	return 0
}

// runPruner trims the journal at startup and then hourly.
func runPruner(ctx context.Context, j *journal.Journal, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	prune := func() {
		n, err := j.Prune(ctx, retention)
		if err != nil {
			logger.Warn("journal prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("journal pruned", "deleted", n)
		}
	}

	prune()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp()
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "env":
		fmt.Println(config.EnvUsage())
		return 0
	case "help":
		printConfigNounHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp() {
	fmt.Println("Usage: sentinel-relay config <check|show|lock|env> [--config PATH]")
}

type checkResult struct {
	Valid    bool     `json:"valid"`
	Source   string   `json:"source"`
	Endpoint string   `json:"endpoint,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result := checkResult{Valid: true, Source: "environment"}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	} else {
		if cfg.SourceFile != "" {
			result.Source = cfg.SourceFile
		}
		if err := cfg.ValidateCredentials(); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Endpoint = ingest.New(cfg.IngestConfig()).URL()
		}
	}

	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Source: %s\n", result.Source)
		if result.Endpoint != "" {
			fmt.Printf("Endpoint: %s\n", result.Endpoint)
		}
		for _, e := range result.Errors {
			fmt.Printf("ERROR: %s\n", e)
		}
		if result.Valid {
			fmt.Println("Configuration OK")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		configPath = config.DiscoverConfig()
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "No config file found; pass --config")
		return 1
	}

	if stat, err := os.Stat(configPath); err == nil && stat.IsDir() {
		configPath = filepath.Join(configPath, "config.yaml")
	}

	res, err := config.LockConfig(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock %s: %v\n", configPath, err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("  HASH %s: %s\n", res.ConfigFile, res.Hash)
	}
	if dryRun {
		fmt.Printf("Dry run: %s not written\n", res.ChecksumPath)
	} else {
		fmt.Printf("Wrote %s\n", res.ChecksumPath)
	}
	return 0
}

func runDeliveriesNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sentinel-relay deliveries <list|prune> [--config PATH]")
		return 1
	}

	switch args[0] {
	case "list":
		return runDeliveriesList(args[1:])
	case "prune":
		return runDeliveriesPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown deliveries action: %s\n", args[0])
		return 1
	}
}

func openJournal(ctx context.Context, configPath string) (*journal.Journal, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, nil, fmt.Errorf("journal is disabled (journal.enabled: false)")
	}
	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}
	return j, cfg, nil
}

func runDeliveriesList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, _, err := openJournal(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	entries, err := j.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	for _, e := range entries {
		fmt.Printf("%s  %-9s  %3d  %-24s  %6dB  %s\n",
			e.CompletedAt.Format(time.RFC3339), e.Status, e.StatusCode, e.LogType, e.ContentLength, e.ID)
		if e.Error != "" {
			fmt.Printf("    %s\n", e.Error)
		}
	}
	return 0
}

func runDeliveriesPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	olderThan := fs.Duration("older-than", 0, "Retention override (default: journal.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, cfg, err := openJournal(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	retention := cfg.Journal.Retention
	if *olderThan > 0 {
		retention = *olderThan
	}
	n, err := j.Prune(ctx, retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune journal: %v\n", err)
		return 1
	}
	fmt.Printf("Deleted %d entries older than %s\n", n, retention)
	return 0
}

// runSign prints what the relay would sign for a body of the given length.
// The key comes from configuration or the environment, never from a flag.
func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	length := fs.Int("length", -1, "Body length in bytes")
	file := fs.String("file", "", "Compute the length of this JSON file after normalization")
	date := fs.String("date", "", "RFC-1123 date to sign (default: now)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	if err := cfg.ValidateCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid credentials: %v\n", err)
		return 1
	}

	n := *length
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
			return 1
		}
		p, err := normalize.New(normalize.Options{}).Normalize(data, "sign")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to normalize %s: %v\n", *file, err)
			return 1
		}
		n = len(p.Body)
	}
	if n < 0 {
		fmt.Fprintln(os.Stderr, "Usage: sentinel-relay sign (--length N | --file PATH) [--date DATE]")
		return 1
	}

	sc := signature.NewContext(n, time.Now())
	if *date != "" {
		t, err := time.Parse(time.RFC1123, *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --date: %v\n", err)
			return 1
		}
		sc = signature.NewContext(n, t)
	}

	auth, err := signature.Authorization(strings.TrimSpace(cfg.Workspace.ID), cfg.Workspace.SharedKey, sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Signing failed: %v\n", err)
		return 1
	}

	fmt.Printf("String-To-Sign: %q\n", signature.CanonicalString(sc))
	fmt.Printf("x-ms-date: %s\n", sc.Date)
	fmt.Printf("Authorization: %s\n", auth)
	return 0
}
