package markduplicates

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/dupcons/consensus"
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/dupcons/encoding/bamprovider"
	"github.com/grailbio/dupcons/umi"
)

// MarkDuplicates implements duplicate marking.
type MarkDuplicates struct {
	Provider bamprovider.Provider
	Opts     *Opts
	// Consensus builds consensus records. It defaults to
	// consensus.QualityVote.
	Consensus consensus.Builder
	// Events receives diagnostic events. It defaults to a LogSink.
	Events EventSink
}

// Mark marks the duplicates of the provider's records, writes them to
// Opts.OutputPath and returns the run's statistics.
//
// Records are written partition by partition. Records of fragments that never
// completed are written last, tagged with IncompleteTag.
func (m *MarkDuplicates) Mark(ctx context.Context) (stats *Statistics, err error) {
	header, err := m.Provider.GetHeader()
	if err != nil {
		return nil, err
	}
	shards, err := m.Provider.GenerateShards(bamprovider.GenerateShardsOpts{
		ShardSize:       m.Opts.PartitionSize,
		Padding:         m.Opts.Padding,
		IncludeUnmapped: true,
	})
	if err != nil {
		return nil, err
	}
	if m.Events == nil {
		m.Events = &LogSink{}
	}
	if m.Consensus == nil {
		m.Consensus = consensus.QualityVote{}
	}

	var outputStream io.Writer = os.Stdout
	if m.Opts.OutputPath != "" {
		out, e := file.Create(ctx, m.Opts.OutputPath)
		if e != nil {
			return nil, errors.E(e, "create output", m.Opts.OutputPath)
		}
		defer file.CloseAndReport(ctx, out, &err)
		outputStream = out.Writer(ctx)
	}
	queueLength := m.Opts.QueueLength
	if queueLength <= 0 {
		queueLength = 2*m.Opts.Parallelism + 1
	}
	writer, err := gbam.NewShardedBAMWriter(outputStream, queueLength, header)
	if err != nil {
		return nil, errors.E(err, "create bam writer", m.Opts.OutputPath)
	}

	store := NewPartitionDataStore(header, m.Opts, m.Events)
	shardChannel := gbam.NewShardChannel(shards)
	workerStats := make([]*Statistics, m.Opts.Parallelism)
	t0 := time.Now()
	log.Debug.Printf("Creating %d workers for %d partitions", m.Opts.Parallelism, len(shards))
	err = traverse.Each(m.Opts.Parallelism, func(worker int) error {
		workerStats[worker] = NewStatistics()
		for shard := range shardChannel {
			if err := m.processShard(shard, writer, store, workerStats[worker]); err != nil {
				return err
			}
		}
		return nil
	})
	t1 := time.Now()
	log.Debug.Printf("workers all done in %v", t1.Sub(t0))
	if err != nil {
		writer.Close() // nolint: errcheck
		return nil, err
	}

	stats = NewStatistics()
	final := writer.StartShard(len(shards))
	o := &output{sink: final, builder: m.Consensus, events: m.Events, stats: stats}
	for _, pd := range store.All() {
		res := pd.ExtractRemainingFragments()
		if len(res.Incomplete) > 0 {
			log.Debug.Printf("partition %s: %d incomplete fragments", pd.Key, len(res.Incomplete))
		}
		o.handle(res)
		stats.Merge(pd.Statistics())
	}
	for _, s := range workerStats {
		if s != nil {
			stats.Merge(s)
		}
	}
	if err := final.Close(); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, errors.E(err, "close bam writer", m.Opts.OutputPath)
	}
	log.Debug.Printf("closed writer in %v", time.Since(t1))
	return stats, nil
}

// processShard marks the records of one partition. The output shard is
// always closed so that the writer does not wait for it.
func (m *MarkDuplicates) processShard(shard gbam.Shard, writer *gbam.ShardedBAMWriter,
	store *PartitionDataStore, stats *Statistics) (err error) {
	log.Debug.Printf("starting shard %s", shard.String())
	out := writer.StartShard(shard.ShardIdx)
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()
	o := &output{sink: out, builder: m.Consensus, events: m.Events, stats: stats}
	iter := m.Provider.NewIterator(shard)
	err = newPartitionReader(m.Opts, shard, store, o).run(iter)
	if e := iter.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.E(err, "shard", shard.String())
	}
	log.Debug.Printf("finished shard %s, %d records", shard.String(), out.Len())
	return nil
}

// SetupAndMark validates opts, loads the known UMIs, marks duplicates and
// writes the statistics file.
func SetupAndMark(ctx context.Context, provider bamprovider.Provider, opts *Opts) (*Statistics, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	if opts.UmiFile != "" {
		corrector, err := umi.LoadSnapCorrector(ctx, opts.UmiFile)
		if err != nil {
			return nil, err
		}
		opts.KnownUmis = corrector
	}

	events := &LogSink{}
	markDuplicates := &MarkDuplicates{
		Provider: provider,
		Opts:     opts,
		Events:   events,
	}
	stats, err := markDuplicates.Mark(ctx)
	if err != nil {
		log.Debug.Printf("Error marking duplicates: %v", err)
		return nil, err
	}
	stats.Log()
	events.LogSummary()

	if opts.StatsFile != "" {
		if err := WriteDuplicateFrequency(ctx, opts.StatsFile, stats, opts.UseUmis); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
