package lexical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeMergesReferences(t *testing.T) {
	tokens := Tokenize("what does section 12c of chapter 28:01 say")
	assert.Contains(t, tokens, "section12c")
	assert.Contains(t, tokens, "chapter28:01")
	assert.NotContains(t, tokens, "section")
	assert.NotContains(t, tokens, "12c")
}

func TestTokenizeDropsStopWords(t *testing.T) {
	tokens := Tokenize("the employer shall not terminate any contract")
	assert.Equal(t, []string{"employer", "terminate", "contract"}, tokens)
}

func TestTokenizeKeepsDomainTerms(t *testing.T) {
	// "act" and "court" carry ranking signal in this corpus and are
	// deliberately not stop words.
	tokens := Tokenize("the act before the court")
	assert.Contains(t, tokens, "act")
	assert.Contains(t, tokens, "court")
}

func TestTokenizeMinLength(t *testing.T) {
	tokens := Tokenize("i x go to work")
	assert.NotContains(t, tokens, "i")
	assert.NotContains(t, tokens, "x")
	assert.Contains(t, tokens, "work")
}

func TestTokenizeCap(t *testing.T) {
	long := strings.Repeat("employment dismissal wages ", 200)
	tokens := Tokenize(long)
	assert.Len(t, tokens, MaxTokensPerDoc)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("the of and"))
}
