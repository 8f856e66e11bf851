package output

import (
	"sync"
	"time"

	"github.com/ChristianF88/pradix/radix"
	"github.com/ChristianF88/pradix/verify"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report represents the complete output of one pradix run
type Report struct {
	Metadata     Metadata       `json:"metadata"`
	Input        Input          `json:"input"`
	Engine       *Engine        `json:"engine,omitempty"`
	Sort         *SortSummary   `json:"sort,omitempty"`
	Verification *verify.Result `json:"verification,omitempty"`
	OutputFile   string         `json:"output_file,omitempty"`
	Warnings     []Warning      `json:"warnings"`
	Errors       []Error        `json:"errors"`

	// Mutex for thread-safe warning/error appending
	mu sync.Mutex `json:"-"`
}

// Metadata contains information about the run
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Command     string    `json:"command"`
	Version     string    `json:"version"`
	DurationMS  int64     `json:"duration_ms"`
}

// Input describes where the keys came from
type Input struct {
	Source         string     `json:"source"`
	File           string     `json:"file,omitempty"`
	Format         string     `json:"format,omitempty"`
	KeyType        string     `json:"key_type"`
	Keys           int        `json:"keys"`
	Generator      *Generator `json:"generator,omitempty"`
	ReadDurationMS int64      `json:"read_duration_ms"`
}

// Generator records how random keys were produced
type Generator struct {
	Kind  string `json:"kind"`
	Begin uint64 `json:"begin,omitempty"`
	Seed  int64  `json:"seed"`
}

// Engine is the resolved sorter configuration
type Engine struct {
	KeyBits     int   `json:"key_bits"`
	DigitBits   int   `json:"digit_bits"`
	Buckets     int   `json:"buckets"`
	Passes      int   `json:"passes"`
	Workers     int   `json:"workers"`
	SmallCutoff int   `json:"small_cutoff"`
	MemoryLimit int64 `json:"memory_limit_bytes,omitempty"`
}

// SortSummary contains the engine statistics of the sort
type SortSummary struct {
	Keys              int           `json:"keys"`
	DurationUS        int64         `json:"duration_us"`
	RatePerSecond     int64         `json:"rate_per_second"`
	SmallInput        bool          `json:"small_input"`
	BucketGrowths     int           `json:"bucket_growths"`
	ArrayGrowths      int           `json:"array_growths"`
	PeakReservedBytes int64         `json:"peak_reserved_bytes"`
	Passes            []PassSummary `json:"passes"`
}

// PassSummary is one pass of the sort
type PassSummary struct {
	Pass            int   `json:"pass"`
	Shift           uint  `json:"shift"`
	NonEmptyBuckets int   `json:"non_empty_buckets"`
	LargestBucket   int   `json:"largest_bucket"`
	BucketGrowths   int   `json:"bucket_growths"`
	DurationUS      int64 `json:"duration_us"`
}

// Warning represents a warning message
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Error represents an error message
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// NewReport creates a new Report with default metadata
func NewReport(command, version string, startTime time.Time) *Report {
	return &Report{
		Metadata: Metadata{
			GeneratedAt: time.Now().UTC(),
			Command:     command,
			Version:     version,
			DurationMS:  time.Since(startTime).Milliseconds(),
		},
		Warnings: []Warning{},
		Errors:   []Error{},
	}
}

// SetEngine records the resolved sorter configuration
func (r *Report) SetEngine(cfg radix.Config) {
	r.Engine = &Engine{
		KeyBits:     cfg.KeyBits,
		DigitBits:   cfg.DigitBits,
		Buckets:     cfg.Buckets(),
		Passes:      cfg.Passes(),
		Workers:     cfg.Workers,
		SmallCutoff: cfg.SmallCutoff,
		MemoryLimit: cfg.MemoryLimit,
	}
}

// SetSortStats converts engine statistics into the report's sort section
func (r *Report) SetSortStats(st radix.Stats) {
	s := &SortSummary{
		Keys:              st.Keys,
		DurationUS:        st.Duration.Microseconds(),
		SmallInput:        st.SmallInput,
		BucketGrowths:     st.BucketGrowths,
		ArrayGrowths:      st.ArrayGrowths,
		PeakReservedBytes: st.PeakReserved,
		Passes:            make([]PassSummary, 0, len(st.Passes)),
	}
	if st.Duration > 0 {
		s.RatePerSecond = int64(st.Keys) * int64(time.Second) / int64(st.Duration)
	}
	for _, p := range st.Passes {
		s.Passes = append(s.Passes, PassSummary{
			Pass:            p.Pass,
			Shift:           p.Shift,
			NonEmptyBuckets: p.NonEmptyBuckets,
			LargestBucket:   p.LargestBucket,
			BucketGrowths:   p.BucketGrowths,
			DurationUS:      p.Duration.Microseconds(),
		})
	}
	r.Sort = s
}

// ToJSON converts the report to pretty-printed JSON
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ToCompactJSON converts the report to compact JSON
func (r *Report) ToCompactJSON() ([]byte, error) {
	return json.Marshal(r)
}

// AddWarning adds a warning to the report (thread-safe)
func (r *Report) AddWarning(warningType, message string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, Warning{
		Type:    warningType,
		Message: message,
		Count:   count,
	})
}

// AddError adds an error to the report (thread-safe)
func (r *Report) AddError(errorType, message string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, Error{
		Type:    errorType,
		Message: message,
		Count:   count,
	})
}

// UpdateDuration updates the duration in metadata
func (r *Report) UpdateDuration(startTime time.Time) {
	r.Metadata.DurationMS = time.Since(startTime).Milliseconds()
}
