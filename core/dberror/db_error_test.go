package dberror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCodeRoundTrip checks that every sentinel survives Code/FromCode, including wrapped errors.
func TestCodeRoundTrip(t *testing.T) {
	for _, e := range codeTable {
		wrapped := fmt.Errorf("%w: some context", e.err)
		code := Code(wrapped)
		require.Equal(t, e.code, code, e.err.Error())

		back := FromCode(code, wrapped.Error())
		require.ErrorIs(t, back, e.err)
		require.Equal(t, wrapped.Error(), back.Error())
	}
}

func TestCodeUnknownAndNil(t *testing.T) {
	require.Equal(t, StatusSuccess, Code(nil))
	require.NoError(t, FromCode(StatusSuccess, ""))
	require.Equal(t, StatusUnknown, Code(errors.New("boom")))
	require.EqualError(t, FromCode(-9999, "boom"), "boom")
}

func TestIsFatal(t *testing.T) {
	require.True(t, IsFatal(fmt.Errorf("%w: node 42", ErrCorruption)))
	require.False(t, IsFatal(ErrKeyNotFound))
}
