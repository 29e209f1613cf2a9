package markduplicates

import (
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/dupcons/umi"
	"gopkg.in/yaml.v3"
)

// Opts configures a duplicate marking run.
type Opts struct {
	// Input and output.
	BamFile    string `yaml:"bam"`
	IndexFile  string `yaml:"index"`
	OutputPath string `yaml:"output"`
	StatsFile  string `yaml:"stats"`

	// Execution.
	Parallelism       int           `yaml:"parallelism"`
	PartitionSize     int           `yaml:"partition-size"`
	// Padding is read on both sides of a partition. It must be at least
	// the largest distance between a read's alignment start and its
	// unclipped 5' position.
	Padding           int           `yaml:"clip-padding"`
	BufferSize        int           `yaml:"buffer-size"`
	QueueLength       int           `yaml:"queue-length"`
	LockWarnThreshold time.Duration `yaml:"lock-warn-threshold"`

	// Duplicate classification.
	StrandSpecific      bool `yaml:"strand-specific"`
	HighDepthCandidates bool `yaml:"high-depth-candidates"`
	FormConsensus       bool `yaml:"form-consensus"`

	// UMI handling.
	UseUmis           bool   `yaml:"umi"`
	UmiDelim          string `yaml:"umi-delim"`
	UmiPermittedEdits int    `yaml:"umi-edits"`
	UmiDuplex         bool   `yaml:"umi-duplex"`
	UmiDuplexDelim    string `yaml:"umi-duplex-delim"`
	UmiFile           string `yaml:"umi-file"`

	// KnownUmis is loaded from UmiFile.
	KnownUmis *umi.SnapCorrector `yaml:"-"`
}

// DefaultOpts holds the default values of all options.
var DefaultOpts = Opts{
	Parallelism:       1,
	PartitionSize:     1000000,
	Padding:           143,
	BufferSize:        500,
	LockWarnThreshold: 100 * time.Millisecond,
	UmiDelim:          ":",
	UmiPermittedEdits: 1,
	UmiDuplexDelim:    "_",
}

// LoadOpts overlays the YAML config file at path onto opts. Keys missing
// from the file keep their current values.
func LoadOpts(ctx context.Context, path string, opts *Opts) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open config", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return errors.E(err, "read config", path)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return errors.E(errors.Invalid, err, "parse config", path)
	}
	return nil
}

func (o *Opts) umiDelim() byte { return o.UmiDelim[0] }

func (o *Opts) duplexDelim() byte { return o.UmiDuplexDelim[0] }

func validate(opts *Opts) error {
	if opts.BamFile == "" {
		return fmt.Errorf("you must specify a bam file with --bam")
	}
	if opts.PartitionSize <= 0 {
		return fmt.Errorf("partition-size must be positive")
	}
	if opts.Padding < 0 {
		return fmt.Errorf("clip-padding must be non-negative")
	}
	if opts.BufferSize <= 0 {
		return fmt.Errorf("buffer-size must be positive")
	}
	if opts.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if opts.UmiPermittedEdits < 0 {
		return fmt.Errorf("umi-edits must be non-negative")
	}
	if len(opts.UmiDelim) != 1 {
		return fmt.Errorf("umi-delim must be a single character, got %q", opts.UmiDelim)
	}
	if len(opts.UmiDuplexDelim) != 1 {
		return fmt.Errorf("umi-duplex-delim must be a single character, got %q", opts.UmiDuplexDelim)
	}
	if opts.UmiFile != "" && !opts.UseUmis {
		return fmt.Errorf("umi-file is set, but umi is false")
	}
	if opts.UmiDuplex && !opts.UseUmis {
		return fmt.Errorf("umi-duplex is set, but umi is false")
	}
	if opts.IndexFile == "" {
		opts.IndexFile = opts.BamFile + ".bai"
	}
	return nil
}
