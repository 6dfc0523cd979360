package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// requireCovers asserts that chunks are ordered, contiguous, non-overlapping,
// and cover exactly [0, totalSize-1].
func requireCovers(t *testing.T, chunks []Chunk, totalSize int64) {
	t.Helper()
	require.NotEmpty(t, chunks)
	require.EqualValues(t, 0, chunks[0].Start)
	require.Equal(t, totalSize-1, chunks[len(chunks)-1].End)
	for i, c := range chunks {
		require.LessOrEqual(t, c.Start, c.End)
		if i > 0 {
			require.Equal(t, chunks[i-1].End+1, c.Start)
		}
	}
}

func TestChunksCoverage(t *testing.T) {
	sizes := []int64{
		1,
		2,
		TargetChunkSize - 1,
		TargetChunkSize,
		TargetChunkSize + 1,
		3*TargetChunkSize + 12345,
		16 * TargetChunkSize,
		100 * TargetChunkSize,
	}
	for _, size := range sizes {
		for _, parallel := range []bool{false, true} {
			chunks := Chunks(size, parallel)
			requireCovers(t, chunks, size)
		}
	}
}

func TestChunksSequentialIsSingle(t *testing.T) {
	for _, size := range []int64{1, TargetChunkSize, 100 * TargetChunkSize} {
		chunks := Chunks(size, false)
		require.Len(t, chunks, 1)
		require.Equal(t, size, chunks[0].Length())
	}
}

func TestChunksSmallResourceIsSingle(t *testing.T) {
	chunks := Chunks(TargetChunkSize-1, true)
	require.Len(t, chunks, 1)
}

func TestChunksBounded(t *testing.T) {
	for _, size := range []int64{TargetChunkSize, 17 * TargetChunkSize, 1 << 40} {
		require.LessOrEqual(t, len(Chunks(size, true)), MaxChunks)
	}
}

func TestChunksSplitCount(t *testing.T) {
	// 35 MiB splits into 3 chunks of ~11.7 MiB.
	chunks := Chunks(35*1024*1024, true)
	require.Len(t, chunks, 3)
}

func TestChunksZeroSize(t *testing.T) {
	require.Empty(t, Chunks(0, true))
	require.Empty(t, Chunks(0, false))
}

func TestChunksDeterministic(t *testing.T) {
	a := Chunks(123456789, true)
	b := Chunks(123456789, true)
	require.Equal(t, a, b)
}

func TestChunksNotCompleted(t *testing.T) {
	for _, c := range Chunks(50*TargetChunkSize, true) {
		require.False(t, c.Completed)
	}
}
