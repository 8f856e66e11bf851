package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/ChristianF88/pradix/config"
	"github.com/ChristianF88/pradix/ingestor"
	"github.com/ChristianF88/pradix/metrics"
	"github.com/ChristianF88/pradix/output"
	"github.com/ChristianF88/pradix/radix"
	"github.com/ChristianF88/pradix/verify"
	"github.com/ChristianF88/pradix/version"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// OutputConfig contains output formatting options
type OutputConfig struct {
	Compact  bool
	Plain    bool
	Progress bool
}

// ============================================================================
// MAIN ENTRY POINTS
// ============================================================================

// SortFromConfig sorts the keys described by cfg and prints the report.
// The report is printed even when the run fails.
func SortFromConfig(cfg *config.Config, outputConfig OutputConfig) error {
	report, err := executeSort(cfg, outputConfig)
	outputResult(reportWriter(cfg), report, outputConfig)
	return err
}

// ListenFromConfig collects keys over Lumberjack until the count or the
// timeout is reached, sorts them and prints the report.
func ListenFromConfig(ctx context.Context, cfg *config.Config, outputConfig OutputConfig) error {
	report, err := executeListen(ctx, cfg, outputConfig)
	outputResult(reportWriter(cfg), report, outputConfig)
	return err
}

// Generate writes count generated keys to path.
func Generate(in *config.InputConfig, keyBits int, path string, format ingestor.Format, outputConfig OutputConfig) error {
	var report *output.Report
	var err error
	if keyBits <= 32 {
		report, err = executeGenerate[uint32](in, keyBits, path, format)
	} else {
		report, err = executeGenerate[uint64](in, keyBits, path, format)
	}
	outputResult(os.Stdout, report, outputConfig)
	return err
}

// ============================================================================
// EXECUTION
// ============================================================================

func keyTypeName[K constraints.Unsigned]() string {
	var zero K
	return fmt.Sprintf("uint%d", unsafe.Sizeof(zero)*8)
}

func executeSort(cfg *config.Config, outputConfig OutputConfig) (*output.Report, error) {
	if cfg.Sort.KeyBits <= 32 {
		return runSort[uint32](cfg, outputConfig)
	}
	return runSort[uint64](cfg, outputConfig)
}

func runSort[K constraints.Unsigned](cfg *config.Config, outputConfig OutputConfig) (*output.Report, error) {
	start := time.Now()
	report := output.NewReport("sort", version.Version, start)
	defer report.UpdateDuration(start)

	keys, err := loadKeys[K](cfg, report)
	if err != nil {
		report.AddError("input", err.Error(), 0)
		return report, fmt.Errorf("failed to load keys: %w", err)
	}
	return report, sortKeys(keys, cfg, outputConfig, report)
}

func loadKeys[K constraints.Unsigned](cfg *config.Config, report *output.Report) ([]K, error) {
	in := cfg.Input
	readStart := time.Now()
	report.Input.KeyType = keyTypeName[K]()

	var keys []K
	var err error
	if in.File != "" {
		format, ferr := ingestor.ParseFormat(in.Format)
		if ferr != nil {
			return nil, ferr
		}
		report.Input.Source = "file"
		report.Input.File = in.File
		report.Input.Format = format.String()
		keys, err = ingestor.ReadKeys[K](in.File, format, cfg.Sort.KeyBits)
	} else {
		keys, err = generateKeys[K](in, cfg.Sort.KeyBits, report)
	}
	report.Input.ReadDurationMS = time.Since(readStart).Milliseconds()
	if err != nil {
		return nil, err
	}
	report.Input.Keys = len(keys)
	return keys, nil
}

func generateKeys[K constraints.Unsigned](in *config.InputConfig, keyBits int, report *output.Report) ([]K, error) {
	report.Input.Source = "random"
	if in.Uniform {
		report.Input.Generator = &output.Generator{Kind: "uniform", Seed: in.Seed}
		return ingestor.Uniform[K](in.Random, keyBits, in.Seed)
	}
	report.Input.Generator = &output.Generator{Kind: "permutation", Begin: in.Begin, Seed: in.Seed}
	return ingestor.Permutation[K](in.Begin, in.Random, keyBits, in.Seed)
}

func newPassBar(passes, keys int) *progressbar.ProgressBar {
	return progressbar.NewOptions(passes,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("sorting %s keys", output.FormatNumber(keys))),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// sortKeys runs the engine over keys and fills the sort, verification and
// output parts of report.
func sortKeys[K constraints.Unsigned](keys []K, cfg *config.Config, outputConfig OutputConfig, report *output.Report) error {
	rc := cfg.RadixConfig()

	var fingerprint verify.Fingerprint
	if cfg.Output.Verify {
		fingerprint = verify.FingerprintOf(keys)
	}

	var opts []radix.Option
	var bar *progressbar.ProgressBar
	if outputConfig.Progress && len(keys) > rc.SmallCutoff {
		bar = newPassBar(rc.Passes(), len(keys))
		opts = append(opts, radix.WithPassHook(func(radix.PassStats) {
			bar.Add(1)
		}))
	}

	sorter, err := radix.NewSorter[K](rc, opts...)
	if err != nil {
		report.AddError("config", err.Error(), 0)
		return err
	}
	report.SetEngine(sorter.Config())

	sorted, err := sorter.Sort(keys)
	if bar != nil {
		bar.Finish()
	}
	stats := sorter.Stats()
	metrics.ObserveSort(keyTypeName[K](), stats, err)
	report.SetSortStats(stats)
	if err != nil {
		report.AddError(metrics.ErrorKind(err), err.Error(), 0)
		writeMetrics(cfg, report)
		return fmt.Errorf("sort failed: %w", err)
	}
	if stats.SmallInput {
		report.AddWarning("info", fmt.Sprintf("input of %d keys sorted without radix passes (cutoff %d)", stats.Keys, rc.SmallCutoff), 0)
	}

	var failed error
	if cfg.Output.Verify {
		result := verify.Check(fingerprint, sorted, rc.KeyBits)
		report.Verification = &result
		if !result.OK() {
			msg := "sorted output holds different keys than the input"
			if !result.Sorted {
				msg = fmt.Sprintf("sorted output is out of order at index %d", result.FirstUnsorted)
			}
			report.AddError("verify", msg, 0)
			failed = errors.New(msg)
		}
	}

	if cfg.Output.File != "" {
		format, err := ingestor.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}
		if err := output.WriteKeysFile(cfg.Output.File, sorted, format); err != nil {
			report.AddError("output", err.Error(), 0)
			return fmt.Errorf("failed to write keys: %w", err)
		}
		report.OutputFile = cfg.Output.File
	}

	if cfg.Output.PlotPath != "" {
		if len(stats.Passes) == 0 {
			report.AddWarning("plot", "no radix passes ran, heatmap skipped", 0)
		} else if err := output.PlotPassHeatmap(stats.Passes, rc.Buckets(), cfg.Output.PlotPath); err != nil {
			report.AddWarning("plot", fmt.Sprintf("failed to write heatmap: %v", err), 0)
		} else {
			klog.Infof("heatmap written to %s", cfg.Output.PlotPath)
		}
	}

	if cfg.Output.Print {
		if err := output.WriteKeys(os.Stdout, sorted, ingestor.FormatText); err != nil {
			return err
		}
	}

	writeMetrics(cfg, report)
	return failed
}

func writeMetrics(cfg *config.Config, report *output.Report) {
	if cfg.Output.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
		report.AddWarning("metrics", fmt.Sprintf("failed to write metrics: %v", err), 0)
	}
}

func executeListen(ctx context.Context, cfg *config.Config, outputConfig OutputConfig) (*output.Report, error) {
	if cfg.Sort.KeyBits <= 32 {
		return runListen[uint32](ctx, cfg, outputConfig)
	}
	return runListen[uint64](ctx, cfg, outputConfig)
}

func runListen[K constraints.Unsigned](ctx context.Context, cfg *config.Config, outputConfig OutputConfig) (*output.Report, error) {
	start := time.Now()
	report := output.NewReport("listen", version.Version, start)
	defer report.UpdateDuration(start)
	report.Input.Source = "lumberjack"
	report.Input.KeyType = keyTypeName[K]()

	addr, err := listenAddr(cfg.Listen.Port)
	if err != nil {
		report.AddError("input", err.Error(), 0)
		return report, err
	}
	ing, err := ingestor.NewTCPIngestor(addr, config.DefaultListenTimeout)
	if err != nil {
		report.AddError("input", err.Error(), 0)
		return report, fmt.Errorf("failed to start listener: %w", err)
	}
	defer ing.Close()
	report.Input.File = ing.Addr().String()

	if err := ing.Accept(); err != nil {
		report.AddError("input", err.Error(), 0)
		return report, err
	}
	klog.Infof("listening for keys on %s", ing.Addr())

	if cfg.Listen.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Listen.Timeout)
		defer cancel()
	}

	readStart := time.Now()
	keys, err := ingestor.CollectKeys[K](ctx, ing, cfg.Listen.Count, cfg.Sort.KeyBits)
	report.Input.ReadDurationMS = time.Since(readStart).Milliseconds()
	report.Input.Keys = len(keys)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if cfg.Listen.Count > 0 {
			report.AddWarning("listen", fmt.Sprintf("timeout reached after %d of %d keys", len(keys), cfg.Listen.Count), len(keys))
		}
	case errors.Is(err, context.Canceled):
		report.AddWarning("listen", "interrupted, sorting the keys received so far", len(keys))
	case err != nil:
		report.AddError("input", err.Error(), 0)
		return report, err
	}

	return report, sortKeys(keys, cfg, outputConfig, report)
}

func executeGenerate[K constraints.Unsigned](in *config.InputConfig, keyBits int, path string, format ingestor.Format) (*output.Report, error) {
	start := time.Now()
	report := output.NewReport("generate", version.Version, start)
	defer report.UpdateDuration(start)
	report.Input.KeyType = keyTypeName[K]()
	report.Input.Format = format.String()

	keys, err := generateKeys[K](in, keyBits, report)
	report.Input.ReadDurationMS = time.Since(start).Milliseconds()
	if err != nil {
		report.AddError("input", err.Error(), 0)
		return report, err
	}
	report.Input.Keys = len(keys)

	if err := output.WriteKeysFile(path, keys, format); err != nil {
		report.AddError("output", err.Error(), 0)
		return report, fmt.Errorf("failed to write keys: %w", err)
	}
	report.OutputFile = path
	return report, nil
}

// ============================================================================
// OUTPUT FUNCTIONS
// ============================================================================

// reportWriter keeps stdout free for the sorted keys when --print is set.
func reportWriter(cfg *config.Config) io.Writer {
	if cfg != nil && cfg.Output.Print {
		return os.Stderr
	}
	return os.Stdout
}

// outputResult is the unified output function that handles all output formats
func outputResult(w io.Writer, report *output.Report, outputConfig OutputConfig) {
	if outputConfig.Plain {
		outputPlain(w, report)
		return
	}

	var jsonBytes []byte
	var err error

	if outputConfig.Compact {
		jsonBytes, err = report.ToCompactJSON()
	} else {
		jsonBytes, err = report.ToJSON()
	}

	if err != nil {
		fmt.Fprintf(w, `{"error": "failed to marshal JSON output: %v"}`, err)
		return
	}
	fmt.Fprintln(w, string(jsonBytes))
}

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────"
)

// outputPlain formats the report as human-readable plain text
func outputPlain(w io.Writer, report *output.Report) {
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintf(w, "                               pradix %s Results\n", report.Metadata.Command)
	fmt.Fprintf(w, "%s\n\n", ruleHeavy)

	fmt.Fprintf(w, "📊 OVERVIEW\n")
	fmt.Fprintln(w, ruleLight)
	fmt.Fprintf(w, "Source:          %s\n", report.Input.Source)
	if report.Input.File != "" {
		fmt.Fprintf(w, "File:            %s\n", report.Input.File)
	}
	if g := report.Input.Generator; g != nil {
		fmt.Fprintf(w, "Generator:       %s (begin %d, seed %d)\n", g.Kind, g.Begin, g.Seed)
	}
	fmt.Fprintf(w, "Key Type:        %s\n", report.Input.KeyType)
	fmt.Fprintf(w, "Keys:            %s\n", output.FormatNumber(report.Input.Keys))
	fmt.Fprintf(w, "Generated:       %s\n", report.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration:        %d ms\n", report.Metadata.DurationMS)
	fmt.Fprintf(w, "\n")

	if e := report.Engine; e != nil {
		fmt.Fprintf(w, "⚙️  ENGINE\n")
		fmt.Fprintln(w, ruleLight)
		fmt.Fprintf(w, "Key Bits:        %d\n", e.KeyBits)
		fmt.Fprintf(w, "Digit Bits:      %d (%s buckets)\n", e.DigitBits, output.FormatNumber(e.Buckets))
		fmt.Fprintf(w, "Passes:          %d\n", e.Passes)
		fmt.Fprintf(w, "Workers:         %d\n", e.Workers)
		if e.MemoryLimit > 0 {
			fmt.Fprintf(w, "Memory Limit:    %s\n", output.FormatBytes(e.MemoryLimit))
		} else {
			fmt.Fprintf(w, "Memory Limit:    unlimited\n")
		}
		fmt.Fprintf(w, "\n")
	}

	if s := report.Sort; s != nil {
		fmt.Fprintf(w, "⚡ SORT PERFORMANCE\n")
		fmt.Fprintln(w, ruleLight)
		fmt.Fprintf(w, "Keys Sorted:     %s\n", output.FormatNumber(s.Keys))
		fmt.Fprintf(w, "Sort Time:       %d μs\n", s.DurationUS)
		fmt.Fprintf(w, "Sort Rate:       %s keys/sec\n", output.FormatNumber(int(s.RatePerSecond)))
		fmt.Fprintf(w, "Peak Reserved:   %s\n", output.FormatBytes(s.PeakReservedBytes))
		fmt.Fprintf(w, "Bucket Growths:  %d\n", s.BucketGrowths)
		if s.SmallInput {
			fmt.Fprintf(w, "Small Input:     insertion sort\n")
		}
		if len(s.Passes) > 0 {
			fmt.Fprintf(w, "...............................................................................  \n")
			for _, p := range s.Passes {
				fmt.Fprintf(w, "  Pass %d  shift %2d  %6d buckets used  largest %10s  %8d μs\n",
					p.Pass, p.Shift, p.NonEmptyBuckets, output.FormatNumber(p.LargestBucket), p.DurationUS)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	if v := report.Verification; v != nil {
		fmt.Fprintf(w, "🔍 VERIFICATION\n")
		fmt.Fprintln(w, ruleLight)
		fmt.Fprintf(w, "Ordered:         %t\n", v.Sorted)
		fmt.Fprintf(w, "Same Keys:       %t\n", v.SameKeys)
		fmt.Fprintf(w, "\n")
	}

	if report.OutputFile != "" {
		fmt.Fprintf(w, "Output File:     %s\n\n", report.OutputFile)
	}

	if len(report.Warnings) > 0 || len(report.Errors) > 0 {
		fmt.Fprintf(w, "⚠️  DIAGNOSTICS\n")
		fmt.Fprintln(w, ruleLight)

		if len(report.Warnings) > 0 {
			fmt.Fprintf(w, "Warnings:\n")
			for _, warning := range report.Warnings {
				if warning.Type != "info" { // Skip info messages in plain output
					fmt.Fprintf(w, "  • %s\n", warning.Message)
				}
			}
		}

		if len(report.Errors) > 0 {
			fmt.Fprintf(w, "Errors:\n")
			for _, err := range report.Errors {
				fmt.Fprintf(w, "  • %s\n", err.Message)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintln(w, ruleHeavy)
}
