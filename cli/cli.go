package cli

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/ChristianF88/pradix/config"
	"github.com/ChristianF88/pradix/ingestor"
	"github.com/ChristianF88/pradix/radix"
	"github.com/ChristianF88/pradix/version"
	cli "github.com/urfave/cli/v2"
)

// parseDate attempts to parse the build date
func parseDate(d string) time.Time {
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Now()
	}
	return t
}

// Shared flag definitions to eliminate duplication
var (
	// Configuration flags
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to configuration file (mutually exclusive with other flags)",
	}

	// Engine flags
	keyBitsFlag = &cli.IntFlag{
		Name:  "keyBits",
		Usage: "Number of low key bits that take part in the ordering (1-64). Up to 32 bits sorts uint32 keys, above that uint64",
		Value: radix.DefaultConfig().KeyBits,
	}
	digitBitsFlag = &cli.IntFlag{
		Name:  "digitBits",
		Usage: "Bits consumed per pass (1-16); the engine uses 2^digitBits buckets",
		Value: radix.DefaultConfig().DigitBits,
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Parallel scatter workers (0 = one per CPU, capped)",
	}
	memoryLimitFlag = &cli.StringFlag{
		Name:  "memoryLimit",
		Usage: "Upper bound on engine allocations, e.g. '512MiB' (empty = unlimited)",
	}
	smallCutoffFlag = &cli.IntFlag{
		Name:  "smallCutoff",
		Usage: "Inputs of at most this many keys are insertion sorted",
		Value: radix.DefaultConfig().SmallCutoff,
	}

	// Input flags
	fileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "Path to a key file (.gz and .zst are decompressed)",
	}
	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Key file format: text or binary",
		Value: "text",
	}
	randomFlag = &cli.IntFlag{
		Name:  "random",
		Usage: "Sort this many generated keys instead of reading a file",
	}
	beginFlag = &cli.Uint64Flag{
		Name:  "begin",
		Usage: "First key of a generated permutation",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Seed for generated keys",
		Value: config.DefaultSeed,
	}
	uniformFlag = &cli.BoolFlag{
		Name:  "uniform",
		Usage: "Generate keys uniformly over the key width instead of a permutation",
	}

	// Output flags
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Write the sorted keys to this file (.gz and .zst are compressed)",
	}
	outFormatFlag = &cli.StringFlag{
		Name:  "outFormat",
		Usage: "Output key file format: text or binary",
		Value: "text",
	}
	printFlag = &cli.BoolFlag{
		Name:  "print",
		Usage: "Print the sorted keys to stdout before the report",
	}
	verifyFlag = &cli.BoolFlag{
		Name:  "verify",
		Usage: "Check that the output is ordered and holds exactly the input keys",
	}
	plotPathFlag = &cli.StringFlag{
		Name:  "plotPath",
		Usage: "Path where to save the pass heatmap (e.g., '/path/to/heatmap.html'). If not provided, no plot will be generated.",
	}
	metricsFileFlag = &cli.StringFlag{
		Name:  "metricsFile",
		Usage: "Write Prometheus metrics in textfile format to this path after the run",
	}
	compactFlag = &cli.BoolFlag{
		Name:  "compact",
		Usage: "Output compact JSON (no pretty printing)",
		Value: false,
	}
	plainFlag = &cli.BoolFlag{
		Name:  "plain",
		Usage: "Output plain text format for easy readability",
		Value: false,
	}
	progressFlag = &cli.BoolFlag{
		Name:  "progress",
		Usage: "Show a progress bar over the passes on stderr",
		Value: false,
	}

	// Listen-specific flags
	portFlag = &cli.StringFlag{
		Name:  "port",
		Usage: "Port (or host:port) to receive Lumberjack batches on",
		Value: config.DefaultPort,
	}
	countFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "Sort once this many keys arrived (0 = collect until the timeout)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Stop collecting after this long and sort what arrived",
		Value: config.DefaultListenTimeout,
	}

	// Generate-specific flags
	generateCountFlag = &cli.IntFlag{
		Name:     "count",
		Usage:    "Number of keys to generate",
		Required: true,
	}
	generateOutFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "Path of the key file to write (.gz and .zst are compressed)",
		Required: true,
	}
)

// Shared validation functions
func validateConfigModeFlags(c *cli.Context, allowedFlags []string) error {
	allowed := make(map[string]bool)
	for _, flag := range allowedFlags {
		allowed[flag] = true
	}

	flagsToCheck := []string{
		"keyBits", "digitBits", "workers", "memoryLimit", "smallCutoff",
		"file", "format", "random", "begin", "seed", "uniform",
		"out", "outFormat", "print", "verify", "plotPath", "metricsFile",
		"port", "count", "timeout",
		"compact", "plain", "progress",
	}

	for _, flag := range flagsToCheck {
		if c.IsSet(flag) && !allowed[flag] {
			return fmt.Errorf("when using --config, only %v flags are allowed", allowedFlags)
		}
	}
	return nil
}

func validatePlotPath(plotPath string) error {
	if plotPath != "" {
		plotDir := filepath.Dir(plotPath)
		if plotDir == "." {
			plotDir, _ = os.Getwd()
		}
		if _, err := os.Stat(plotDir); os.IsNotExist(err) {
			return fmt.Errorf("plot directory does not exist: %s", plotDir)
		}
	}
	return nil
}

// listenAddr turns a port flag into a listen address. A bare port listens on
// all interfaces.
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return "", fmt.Errorf("port is required")
	}
	if !strings.Contains(port, ":") {
		port = ":" + port
	}
	_, p, err := net.SplitHostPort(port)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", port, err)
	}
	n, err := strconv.Atoi(p)
	if err != nil || n < 0 || n > 65535 {
		return "", fmt.Errorf("invalid port %q", p)
	}
	return port, nil
}

// engineFromFlags fills the [sort] section of cfg from the engine flags.
func engineFromFlags(c *cli.Context, cfg *config.Config) error {
	cfg.Sort.KeyBits = c.Int("keyBits")
	cfg.Sort.DigitBits = c.Int("digitBits")
	cfg.Sort.Workers = c.Int("workers")
	cfg.Sort.SmallCutoff = c.Int("smallCutoff")
	if raw := c.String("memoryLimit"); raw != "" {
		limit, err := config.ParseMemoryLimit(raw)
		if err != nil {
			return err
		}
		cfg.Sort.MemoryLimit = limit
		cfg.Sort.MemoryLimitRaw = raw
	}
	return nil
}

func outputFromFlags(c *cli.Context, cfg *config.Config) {
	cfg.Output.File = c.String("out")
	cfg.Output.Format = c.String("outFormat")
	cfg.Output.Print = c.Bool("print")
	cfg.Output.Verify = c.Bool("verify")
	cfg.Output.PlotPath = c.String("plotPath")
	cfg.Output.MetricsFile = c.String("metricsFile")
}

func outputConfigFromFlags(c *cli.Context) OutputConfig {
	return OutputConfig{
		Compact:  c.Bool("compact"),
		Plain:    c.Bool("plain"),
		Progress: c.Bool("progress"),
	}
}

// Command handler functions to reduce deep nesting

// handleSortCommand processes the sort command with proper separation of concerns
func handleSortCommand(c *cli.Context) error {
	configPath := c.String("config")
	if configPath != "" {
		return handleSortConfigMode(c, configPath)
	}
	return handleSortFlagsMode(c)
}

// handleSortConfigMode handles sort command when using config file
func handleSortConfigMode(c *cli.Context, configPath string) error {
	if err := validateConfigModeFlags(c, []string{"compact", "plain", "progress"}); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateSort(); err != nil {
		return fmt.Errorf("invalid sort configuration: %w", err)
	}

	if err := validatePlotPath(cfg.Output.PlotPath); err != nil {
		return err
	}

	return SortFromConfig(cfg, outputConfigFromFlags(c))
}

// handleSortFlagsMode handles sort command when using CLI flags only
func handleSortFlagsMode(c *cli.Context) error {
	if !c.IsSet("file") && !c.IsSet("random") {
		return fmt.Errorf("file or random is required when not using --config")
	}

	cfg := config.Default()
	if err := engineFromFlags(c, cfg); err != nil {
		return err
	}
	cfg.Input.File = c.String("file")
	cfg.Input.Format = c.String("format")
	cfg.Input.Random = c.Int("random")
	cfg.Input.Begin = c.Uint64("begin")
	cfg.Input.Seed = c.Int64("seed")
	cfg.Input.Uniform = c.Bool("uniform")
	outputFromFlags(c, cfg)

	if err := cfg.ValidateSort(); err != nil {
		return err
	}

	if err := validatePlotPath(cfg.Output.PlotPath); err != nil {
		return err
	}

	return SortFromConfig(cfg, outputConfigFromFlags(c))
}

// handleListenCommand processes the listen command
func handleListenCommand(c *cli.Context) error {
	configPath := c.String("config")
	if configPath != "" {
		return handleListenConfigMode(c, configPath)
	}
	return handleListenFlagsMode(c)
}

func handleListenConfigMode(c *cli.Context, configPath string) error {
	if err := validateConfigModeFlags(c, []string{"compact", "plain", "progress"}); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateListen(); err != nil {
		return fmt.Errorf("invalid listen configuration: %w", err)
	}

	if err := validatePlotPath(cfg.Output.PlotPath); err != nil {
		return err
	}

	return ListenFromConfig(c.Context, cfg, outputConfigFromFlags(c))
}

func handleListenFlagsMode(c *cli.Context) error {
	cfg := config.Default()
	if err := engineFromFlags(c, cfg); err != nil {
		return err
	}
	cfg.Listen.Port = c.String("port")
	cfg.Listen.Count = c.Int("count")
	cfg.Listen.Timeout = c.Duration("timeout")
	outputFromFlags(c, cfg)

	if err := cfg.ValidateListen(); err != nil {
		return err
	}

	if err := validatePlotPath(cfg.Output.PlotPath); err != nil {
		return err
	}

	return ListenFromConfig(c.Context, cfg, outputConfigFromFlags(c))
}

// handleGenerateCommand writes a generated key file
func handleGenerateCommand(c *cli.Context) error {
	keyBits := c.Int("keyBits")
	if keyBits < 1 || keyBits > 64 {
		return fmt.Errorf("keyBits must be between 1 and 64, got %d", keyBits)
	}
	if c.Int("count") < 0 {
		return fmt.Errorf("count must be >= 0, got %d", c.Int("count"))
	}
	format, err := ingestor.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	in := &config.InputConfig{
		Random:  c.Int("count"),
		Begin:   c.Uint64("begin"),
		Seed:    c.Int64("seed"),
		Uniform: c.Bool("uniform"),
	}
	return Generate(in, keyBits, c.String("out"), format, outputConfigFromFlags(c))
}

func handleVersionCommand(c *cli.Context) error {
	fmt.Printf("pradix %s\n", version.Version)
	if version.Commit != "" {
		fmt.Printf("Commit: %s\n", version.Commit)
	}
	if version.Date != "" {
		fmt.Printf("Built:  %s\n", version.Date)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Printf("Go:     %s\n", info.GoVersion)
		for _, setting := range info.Settings {
			if strings.HasPrefix(setting.Key, "vcs.") {
				fmt.Printf("  %s: %s\n", setting.Key, setting.Value)
			}
		}
	}
	return nil
}

var App = &cli.App{
	Name:     "pradix",
	Usage:    "Parallel LSD radix sort for unsigned integer keys",
	Version:  version.Version,
	Compiled: parseDate(version.Date),
	Flags:    NewKlogFlagSet(),
	Commands: []*cli.Command{
		{
			Name:  "sort",
			Usage: "Sort keys from a file or a generator and report engine statistics",
			Flags: []cli.Flag{
				// Configuration
				configFlag,
				// Engine
				keyBitsFlag,
				digitBitsFlag,
				workersFlag,
				memoryLimitFlag,
				smallCutoffFlag,
				// Input
				fileFlag,
				formatFlag,
				randomFlag,
				beginFlag,
				seedFlag,
				uniformFlag,
				// Output
				outFlag,
				outFormatFlag,
				printFlag,
				verifyFlag,
				plotPathFlag,
				metricsFileFlag,
				compactFlag,
				plainFlag,
				progressFlag,
			},
			Action: handleSortCommand,
		},
		{
			Name:  "listen",
			Usage: "Collect keys from Lumberjack (Beats) clients, then sort them",
			Flags: []cli.Flag{
				// Configuration
				configFlag,
				// Listen-specific
				portFlag,
				countFlag,
				timeoutFlag,
				// Engine
				keyBitsFlag,
				digitBitsFlag,
				workersFlag,
				memoryLimitFlag,
				smallCutoffFlag,
				// Output
				outFlag,
				outFormatFlag,
				printFlag,
				verifyFlag,
				plotPathFlag,
				metricsFileFlag,
				compactFlag,
				plainFlag,
				progressFlag,
			},
			Action: handleListenCommand,
		},
		{
			Name:  "generate",
			Usage: "Write a key file of generated keys",
			Flags: []cli.Flag{
				generateCountFlag,
				generateOutFlag,
				keyBitsFlag,
				formatFlag,
				beginFlag,
				seedFlag,
				uniformFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleGenerateCommand,
		},
		{
			Name:   "version",
			Usage:  "Print build information",
			Action: handleVersionCommand,
		},
	},
}
