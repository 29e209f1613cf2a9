package bam

import (
	"io"
	"sync"

	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// ShardedBAMWriter writes a BAM file as a sequence of shards. Each shard has a
// sequentially increasing shard number starting at 0, and the shards are
// written to the output in the order of their shard numbers regardless of the
// order in which they are closed.
//
// Example use of ShardedBAMWriter:
//
//   w, err := NewShardedBAMWriter(f, 10, header)
//   s1 := w.StartShard(1)
//   s1.AddRecord(record1)
//   s0 := w.StartShard(0)
//   s0.AddRecord(record0)
//   s1.Close()
//   s0.Close()
//   err = w.Close()
type ShardedBAMWriter struct {
	w         *bam.Writer
	queue     *syncqueue.OrderedQueue
	waitGroup sync.WaitGroup
	err       error
}

// BAMShard buffers the records of one in-progress shard.
type BAMShard struct {
	writer   *ShardedBAMWriter
	shardNum int
	records  []*sam.Record
}

// NewShardedBAMWriter creates a new ShardedBAMWriter that writes the output
// BAM to w. queueSize bounds the number of closed shards buffered while
// waiting for a preceding shard.
func NewShardedBAMWriter(w io.Writer, queueSize int, header *sam.Header) (*ShardedBAMWriter, error) {
	bw, err := bam.NewWriter(w, header, 1)
	if err != nil {
		return nil, err
	}
	sw := &ShardedBAMWriter{
		w:     bw,
		queue: syncqueue.NewOrderedQueue(queueSize),
	}
	sw.waitGroup.Add(1)
	go func() {
		defer sw.waitGroup.Done()
		sw.writeShards()
	}()
	return sw, nil
}

// StartShard begins a new shard with the given shard number.
func (bw *ShardedBAMWriter) StartShard(shardNum int) *BAMShard {
	return &BAMShard{writer: bw, shardNum: shardNum}
}

// AddRecord appends r to the shard.
func (s *BAMShard) AddRecord(r *sam.Record) {
	s.records = append(s.records, r)
}

// Len returns the number of records in the shard.
func (s *BAMShard) Len() int {
	return len(s.records)
}

// Close passes the shard to its parent writer. This may block if the queue is
// full.
func (s *BAMShard) Close() error {
	return s.writer.queue.Insert(s.shardNum, s)
}

func (bw *ShardedBAMWriter) writeShards() {
	for {
		entry, ok, err := bw.queue.Next()
		if err != nil {
			bw.err = err
			break
		}
		if !ok {
			break
		}
		shard := entry.(*BAMShard)
		for _, r := range shard.records {
			if err = bw.w.Write(r); err != nil {
				bw.err = err
				bw.queue.Close(err)
				return
			}
		}
	}
}

// Close the BAM file.  This should be called only after all shards have been
// closed.
func (bw *ShardedBAMWriter) Close() error {
	err := bw.queue.Close(nil)
	bw.waitGroup.Wait()
	if bw.err != nil {
		return bw.err
	}
	if err != nil {
		return err
	}
	return bw.w.Close()
}
