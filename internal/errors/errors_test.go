package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("process: %w", ParseTimeout("a.py", io.ErrUnexpectedEOF))

	assert.True(t, stderrors.Is(err, ErrParseTimeout))
	assert.False(t, stderrors.Is(err, ErrFetchFailure))
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
}

func TestError_Message(t *testing.T) {
	t.Parallel()
	err := FetchFailure("src/x.go", io.EOF)
	assert.Equal(t, "src/x.go: content unavailable: EOF", err.Error())

	bare := &Error{Kind: KindRefNotFound}
	assert.Equal(t, "ref_not_found", bare.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	k, ok := KindOf(fmt.Errorf("wrap: %w", UnsupportedLanguage("README")))
	require.True(t, ok)
	assert.Equal(t, KindUnsupportedLanguage, k)

	_, ok = KindOf(io.EOF)
	assert.False(t, ok)
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	assert.True(t, IsFatal(InvalidRepository("https://x/y", "empty repository", nil)))
	assert.True(t, IsFatal(fmt.Errorf("build: %w", &Error{Kind: KindRefNotFound})))
	assert.False(t, IsFatal(ParseTimeout("a.c", nil)))
	assert.False(t, IsFatal(io.EOF))

	assert.True(t, InvalidRepository("u", "m", nil).IsFatal())
	assert.False(t, FetchFailure("p", nil).IsFatal())
}
