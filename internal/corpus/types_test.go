package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetConfidenceClips(t *testing.T) {
	r := NewResult(&Chunk{ID: "c1"}, 1.7, "lexical")
	assert.Equal(t, 1.0, r.Confidence)

	r.SetConfidence(-0.2)
	assert.Equal(t, 0.0, r.Confidence)

	r.SetConfidence(0.42)
	assert.Equal(t, 0.42, r.Confidence)
}

func TestProvenance(t *testing.T) {
	r := NewResult(&Chunk{ID: "c1"}, 0.5, "vector")
	assert.Equal(t, "vector", r.Prov(ProvSource))
	assert.Empty(t, r.Prov(ProvRerank))

	r.SetProv(ProvRerank, "model")
	assert.Equal(t, "model", r.Prov(ProvRerank))
}

func TestChunkMeta(t *testing.T) {
	c := &Chunk{}
	assert.Empty(t, c.Meta("title"))
	c.SetMeta("title", "Labour Act")
	assert.Equal(t, "Labour Act", c.Meta("title"))

	var nilChunk *Chunk
	assert.Empty(t, nilChunk.Meta("title"))
}

func TestStableIDs(t *testing.T) {
	a := DocIDFromSource("acts/labour-28-01.md")
	b := DocIDFromSource("acts/labour-28-01.md")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, DocIDFromSource("acts/other.md"))

	x := ChunkIDFromContent(a, "part2/s12c")
	y := ChunkIDFromContent(a, "part2/s12c")
	assert.Equal(t, x, y)
	assert.NotEqual(t, x, ChunkIDFromContent(a, "part2/s12"))
}
