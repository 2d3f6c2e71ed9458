package remotefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSignatureMatchesSpecScenario(t *testing.T) {
	got := BuildSignature(100, 1700000000, true, 16777216, "/some/dir/a.txt")
	assert.Equal(t, "100 1700000000 1 16777216 a.txt", got)
}

func TestBuildSignatureCompressFalseIsZero(t *testing.T) {
	got := BuildSignature(10, 5, false, 1024, "b.bin")
	assert.Equal(t, "10 5 0 1024 b.bin", got)
}

func TestBuildSignatureIsDeterministic(t *testing.T) {
	a := BuildSignature(123, 456, true, 789, "c.dat")
	b := BuildSignature(123, 456, true, 789, "c.dat")
	assert.Equal(t, a, b)
}

func TestPercentageCompleteZeroSizeFile(t *testing.T) {
	assert.Equal(t, 100.0, percentageComplete(nil, 0, 1024))
}

func TestPercentageCompleteNoPartsComplete(t *testing.T) {
	assert.Equal(t, 0.0, percentageComplete(map[string]partState{}, 12*1024*1024, 5*1024*1024))
}

func TestPercentageCompleteLastPartCompleteExactMultiple(t *testing.T) {
	// size is an exact multiple of chunkSize: 2 parts of 5MiB each, both
	// complete -> 100%. Exercises the case where the last part's size
	// falls back to a full chunkSize rather than zero.
	parts := map[string]partState{
		"1": {State: "complete"},
		"2": {State: "complete"},
	}
	pct := percentageComplete(parts, 10*1024*1024, 5*1024*1024)
	assert.Equal(t, 100.0, pct)
}

func TestPercentageCompletePartialResumeWithSmallerLastPart(t *testing.T) {
	// 12MiB file, 5MiB chunks -> parts 1,2 full 5MiB, part 3 is 2MiB.
	// Only part 1 complete: 5MiB / 12MiB.
	parts := map[string]partState{"1": {State: "complete"}}
	pct := percentageComplete(parts, 12*1024*1024, 5*1024*1024)
	assert.InDelta(t, float64(5*1024*1024)/float64(12*1024*1024)*100, pct, 0.0001)
}
