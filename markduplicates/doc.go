/*Package markduplicates marks duplicate read pairs in coordinate-sorted
  BAM files, and optionally collapses each set of duplicates into
  consensus reads.

  Duplicate Marking Concepts:

  A fragment is one sequenced template: its primary reads, and any
  supplementary alignments of them. Each mapped primary read has an
  unclipped 5' position and a strand. A fragment's coordinates are the
  5' end of its lower read followed by the 5' end of its upper read,
  for example

    chr1_1000_chr1_1200_R

  for a pair whose forward read starts at 1000 and whose reverse read
  ends at 1200 (1-based). Two fragments with equal coordinates are
  duplicates. With strand-specific marking, a "_N" suffix is appended
  when the lower read is read 2, so that the same molecule read from
  the opposite strand is not a duplicate.

  A fragment whose mate is unmapped has only a lower coordinate, and is
  never a duplicate of a fragment with two mapped reads.

  Candidates:

  The 5' end of a mate is only known once the mate arrives, or from the
  MC (mate cigar) tag. Fragments whose lower ends agree but whose mate
  ends are unknown are candidate duplicates. Candidate links are
  transitive, and each connected set of candidates waits until every
  member has its primary reads, and is then reclassified.

  Primary Selection and Consensus:

  Without UMIs or consensus, the fragment with the highest average base
  quality of a duplicate set is the primary and the others are
  duplicates. Ties go to the fragment seen first.

  With UMIs, each duplicate set is split into clusters of UMIs within
  the permitted edit distance, optionally snapped to a list of known
  UMIs first. Duplex UMIs "X_Y" are compared strand independently. Each
  cluster of more than one fragment becomes a UmiGroup: all member
  reads are flagged as duplicates, and the group collects them by read
  type (lower read, upper read, and the supplementary alignments of
  each) until each read type can be collapsed into one consensus read
  named after the group. Consensus reads carry XC, the number of reads
  they were built from, and XD when the group holds both strands of the
  molecule.

  Implementation:

  The genome is split into partitions of PartitionSize bp plus one
  partition for unmapped reads, and workers process partitions in
  parallel. A worker buffers fragments by their lower 5' position until
  it has moved BufferSize bp past them, so that fragments and their
  nearby mates are classified together.

  Each partition is read with Padding bp on both sides. A fragment is
  classified by the partition that holds its lower 5' end, which sees
  the fragment's first record even when soft clipping puts it past the
  partition's end.

  A fragment's base partition is the partition of its leftmost primary
  read. Records that arrive at a worker after their fragment was
  classified, or before it was seen, are handed to the PartitionData of
  the base partition. If the fragment was classified elsewhere, the base
  partition forwards them there. PartitionData holds, under one
  lock per partition, the resolved status of fragments that still
  expect records, fragments that are incomplete or candidates, and the
  UmiGroups still collecting records.

  Output ordering:

  Each partition's records are written as one shard of the output, in
  partition order. Records are not re-sorted within a shard. Records of
  fragments that never completed are written in a final shard with
  status none and tagged ZI:i:1.
*/
package markduplicates
