package cmd

import (
	"context"
	"flag"
	"fmt"
	"runtime"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/dupcons/encoding/bamprovider"
	md "github.com/grailbio/dupcons/markduplicates"
	"v.io/x/lib/cmdline"
)

// defaultOpts returns the options used when neither a flag nor the config
// file sets a value.
func defaultOpts() md.Opts {
	opts := md.DefaultOpts
	opts.Parallelism = runtime.NumCPU()
	return opts
}

// registerFlags binds the command line flags to the fields of opts.
func registerFlags(fs *flag.FlagSet, opts *md.Opts) {
	fs.StringVar(&opts.BamFile, "bam", opts.BamFile, "Input BAM filename")
	fs.StringVar(&opts.IndexFile, "index", opts.IndexFile, "Input BAM index filename. By default, set to input BAM filename + .bai")
	fs.StringVar(&opts.OutputPath, "output", opts.OutputPath, "Output BAM filename. By default, write to stdout")
	fs.StringVar(&opts.StatsFile, "stats", opts.StatsFile, "Output duplicate frequency file. Paths ending in .gz are compressed")
	fs.IntVar(&opts.Parallelism, "parallelism", opts.Parallelism, "Number of partitions to process in parallel")
	fs.IntVar(&opts.PartitionSize, "partition-size", opts.PartitionSize, "Size of a partition in bp")
	fs.IntVar(&opts.Padding, "clip-padding", opts.Padding, "Padding in bp read around each partition. Must be larger than the largest distance between a read's start and its unclipped 5' position")
	fs.IntVar(&opts.BufferSize, "buffer-size", opts.BufferSize, "Distance in bp a fragment is held while waiting for duplicates and mates")
	fs.IntVar(&opts.QueueLength, "queue-length", opts.QueueLength, "Number of partitions to queue while waiting for output. By default 2*parallelism+1")
	fs.DurationVar(&opts.LockWarnThreshold, "lock-warn-threshold", opts.LockWarnThreshold, "Report partition locks held longer than this, 0 to disable")
	fs.BoolVar(&opts.StrandSpecific, "strand-specific", opts.StrandSpecific, "Only mark pairs as duplicates if the same read of each pair is lower")
	fs.BoolVar(&opts.HighDepthCandidates, "high-depth-candidates", opts.HighDepthCandidates, "Treat candidate pairs with similar insert sizes as duplicates without waiting for their mates")
	fs.BoolVar(&opts.FormConsensus, "form-consensus", opts.FormConsensus, "Build a consensus read for every duplicate set")
	fs.BoolVar(&opts.UseUmis, "umi", opts.UseUmis, "Split duplicate sets by the UMI in the read names, and build consensus reads")
	fs.StringVar(&opts.UmiDelim, "umi-delim", opts.UmiDelim, "Character separating the UMI from the rest of the read name")
	fs.IntVar(&opts.UmiPermittedEdits, "umi-edits", opts.UmiPermittedEdits, "Maximum edit distance between UMIs of one molecule")
	fs.BoolVar(&opts.UmiDuplex, "umi-duplex", opts.UmiDuplex, "UMIs are duplex, with halves swapped on the opposite strand")
	fs.StringVar(&opts.UmiDuplexDelim, "umi-duplex-delim", opts.UmiDuplexDelim, "Character separating the halves of a duplex UMI")
	fs.StringVar(&opts.UmiFile, "umi-file", opts.UmiFile, "Perform UMI error correction with the known UMIs in this file")
}

func newCmdMark() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "mark",
		Short: "Mark duplicates and build consensus reads",
		Long: `
Mark duplicate read pairs of a coordinate-sorted BAM file. With -umi or
-form-consensus, duplicate sets are also collapsed into consensus reads.

Options may be read from a YAML file with -config. Keys of the file use the
flag names. Flags given on the command line override the file.`,
	}
	flagOpts := defaultOpts()
	registerFlags(&cmd.Flags, &flagOpts)
	config := cmd.Flags.String("config", "", "YAML file of options")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("mark takes no arguments, but got %v", argv)
		}
		ctx := vcontext.Background()
		opts := flagOpts
		if *config != "" {
			opts = defaultOpts()
			if err := md.LoadOpts(ctx, *config, &opts); err != nil {
				return err
			}
			overrideOpts(&cmd.Flags, &opts)
		}
		return mark(ctx, &opts)
	})
	return cmd
}

// overrideOpts copies the values of the flags that were set in fs into opts.
func overrideOpts(fs *flag.FlagSet, opts *md.Opts) {
	dst := flag.NewFlagSet("override", flag.ContinueOnError)
	registerFlags(dst, opts)
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := dst.Set(f.Name, f.Value.String()); err != nil {
			log.Error.Printf("flag -%s: %v", f.Name, err)
		}
	})
}

func mark(ctx context.Context, opts *md.Opts) (err error) {
	provider := bamprovider.NewProvider(opts.BamFile, bamprovider.ProviderOpts{Index: opts.IndexFile})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	_, err = md.SetupAndMark(ctx, provider, opts)
	log.Debug.Printf("exiting")
	return err
}

// Run parses the command line and runs the selected command.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-dupcons",
			Short:    "Duplicate marking and consensus reads for BAM files",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdMark(),
			},
		})
}
