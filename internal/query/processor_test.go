package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlaw/lexengine/internal/errors"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	resolver := NewAliasResolver(&StorageCatalog{Store: catalogStore(t)}, time.Minute, nil)
	return NewProcessor(resolver, nil)
}

func TestProcessEmptyQuery(t *testing.T) {
	p := newTestProcessor(t)
	_, err := p.Process(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
}

func TestProcessSectionLookup(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "What does Section 12C of the Labour Act say?")
	require.NoError(t, err)

	assert.Equal(t, "12C", proc.Section)
	assert.Equal(t, "28:01", proc.Chapter) // adopted from the resolved statute
	assert.Equal(t, IntentSectionLookup, proc.Intent)
	require.NotEmpty(t, proc.Statutes)
	assert.Equal(t, "Labour Act [Chapter 28:01]", proc.Statutes[0].Title)
}

func TestProcessStatuteLookup(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "overview of the Criminal Code")
	require.NoError(t, err)
	assert.Equal(t, IntentStatuteLookup, proc.Intent)
	assert.Equal(t, "9:23", proc.Chapter)
}

func TestProcessGeneralQuestion(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "when can an employer withhold wages")
	require.NoError(t, err)
	assert.Equal(t, IntentGeneralQuestion, proc.Intent)
	assert.Empty(t, proc.Section)
	assert.Empty(t, proc.Statutes)
}

func TestProcessExplicitChapterWithoutCatalogMatch(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "section 5 of chapter 7:14")
	require.NoError(t, err)
	assert.Equal(t, "7:14", proc.Chapter)
	assert.Equal(t, IntentSectionLookup, proc.Intent)
}

func TestProcessDateContext(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "minimum wage as at 3 March 2005")
	require.NoError(t, err)
	require.NotNil(t, proc.DateCtx)
	assert.Equal(t, DateAsAt, proc.DateCtx.Op)
	assert.Equal(t, 2005, proc.DateCtx.Date.Year())
	assert.NotContains(t, proc.Normalized, "2005")
}

func TestProcessComplexity(t *testing.T) {
	p := newTestProcessor(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  Complexity
	}{
		{"minimum wage", ComplexitySimple},
		{"when can an employer lawfully withhold wages", ComplexityModerate},
		{"difference between the labour act and the criminal code", ComplexityComplex},
		{"compare dismissal under the labour act and the labour relations act and the criminal code", ComplexityExpert},
	}

	for _, tt := range tests {
		proc, err := p.Process(ctx, tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, proc.Complexity, "query: %s", tt.query)
	}
}

func TestProcessVariants(t *testing.T) {
	p := newTestProcessor(t)

	proc, err := p.Process(context.Background(), "What does Section 12C of the Labour Act say?")
	require.NoError(t, err)

	require.NotEmpty(t, proc.Variants)
	assert.Equal(t, proc.Normalized, proc.Variants[0], "original always first")
	assert.LessOrEqual(t, len(proc.Variants), DefaultMaxVariants)

	seen := make(map[string]bool)
	for _, v := range proc.Variants {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestProcessCaching(t *testing.T) {
	p := newTestProcessor(t)
	ctx := context.Background()

	first, err := p.Process(ctx, "minimum wage")
	require.NoError(t, err)
	second, err := p.Process(ctx, "minimum wage")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestProcessNilResolver(t *testing.T) {
	p := NewProcessor(nil, nil)

	proc, err := p.Process(context.Background(), "labour act chapter 28:01 section 2")
	require.NoError(t, err)
	// Statute detection is off but the explicit chapter still routes.
	assert.Equal(t, IntentSectionLookup, proc.Intent)
	assert.Equal(t, "28:01", proc.Chapter)
}
