package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeBlobNotFound, CategoryIO, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, true},
		{ErrCodeNetworkUnavailable, CategoryNetwork, true},
		{ErrCodeServiceStatus, CategoryNetwork, true},
		{ErrCodeMalformedMetadata, CategoryData, false},
		{ErrCodeRerankFailed, CategoryModel, false},
		{ErrCodeInvalidTopK, CategoryValidation, false},
		{ErrCodeInternal, CategoryInternal, false},
	}

	for _, tt := range tests {
		e := New(tt.code, "msg", nil)
		assert.Equal(t, tt.category, e.Category, tt.code)
		assert.Equal(t, tt.retryable, e.Retryable, tt.code)
	}
}

func TestErrorFormatting(t *testing.T) {
	e := New(ErrCodeQueryEmpty, "query is empty", nil)
	assert.Equal(t, "[ERR_603_QUERY_EMPTY] query is empty", e.Error())
}

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("root cause")
	e := New(ErrCodeIndexLoad, "load failed", cause)

	assert.True(t, stderrors.Is(e, cause))
	assert.True(t, stderrors.Is(e, New(ErrCodeIndexLoad, "different message", nil)))
	assert.False(t, stderrors.Is(e, New(ErrCodeIndexCorrupt, "load failed", nil)))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail(t *testing.T) {
	e := New(ErrCodeBlobNotFound, "missing", nil).
		WithDetail("key", "chunks/act/c1.json").
		WithDetail("bucket", "corpus")
	require.NotNil(t, e.Details)
	assert.Equal(t, "chunks/act/c1.json", e.Details["key"])
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsRetryable(NetworkError("down", nil)))
	assert.False(t, IsRetryable(DataError("bad", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(nil))

	assert.Equal(t, ErrCodeInvalidInput, GetCode(ValidationError("bad", nil)))
	assert.Empty(t, GetCode(fmt.Errorf("plain")))

	assert.Equal(t, CategoryModel, GetCategory(ModelError("down", nil)))
}
