package cmd

import (
	"context"
	"flag"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	md "github.com/grailbio/dupcons/markduplicates"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrideOpts(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	config := filepath.Join(tempDir, "opts.yaml")
	require.NoError(t, ioutil.WriteFile(config, []byte(`bam: config.bam
umi: true
umi-edits: 2
`), 0644))

	fs := flag.NewFlagSet("mark", flag.ContinueOnError)
	flagOpts := defaultOpts()
	registerFlags(fs, &flagOpts)
	fs.String("config", "", "")
	require.NoError(t, fs.Parse([]string{
		"-config", config, "-bam", "flag.bam", "-lock-warn-threshold", "2s",
	}))

	opts := defaultOpts()
	require.NoError(t, md.LoadOpts(context.Background(), config, &opts))
	overrideOpts(fs, &opts)
	assert.Equal(t, "flag.bam", opts.BamFile)
	assert.True(t, opts.UseUmis)
	assert.Equal(t, 2, opts.UmiPermittedEdits)
	assert.Equal(t, 2*time.Second, opts.LockWarnThreshold)
	assert.Equal(t, md.DefaultOpts.PartitionSize, opts.PartitionSize)
}
