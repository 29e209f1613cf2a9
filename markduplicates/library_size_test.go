package markduplicates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateLibrarySize(t *testing.T) {
	tests := []struct {
		fragments       uint64
		uniqueFragments uint64
		expected        uint64
	}{
		{1000000, 800000, 2154184},
		{171512300, 171512299, 14708234445116054},
	}

	for _, test := range tests {
		v, err := estimateLibrarySize(test.fragments, test.uniqueFragments)
		assert.NoError(t, err)
		assert.InEpsilon(t, test.expected, v, 0.0000000001)
	}

	_, err := estimateLibrarySize(100, 100)
	assert.Error(t, err)
	_, err = estimateLibrarySize(0, 0)
	assert.Error(t, err)
}

func TestStatisticsEstimatedLibrarySize(t *testing.T) {
	s := NewStatistics()
	for i := 0; i < 600000; i++ {
		s.AddFrequency(1, false)
	}
	for i := 0; i < 200000; i++ {
		s.AddFrequency(2, false)
	}
	// 1000000 fragments, 800000 distinct.
	v, err := s.EstimatedLibrarySize()
	require.NoError(t, err)
	assert.InEpsilon(t, uint64(2154184), v, 0.0000000001)

	_, err = NewStatistics().EstimatedLibrarySize()
	assert.Error(t, err)
}
