package tracking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRatioIdenticalStrings(t *testing.T) {
	require.Equal(t, 100.0, ratio("hello", "hello"))
}

func TestRatioCompletelyDifferent(t *testing.T) {
	r := ratio("abc", "xyz")
	require.Less(t, r, 50.0)
}

func TestPartialRatioFindsSubstring(t *testing.T) {
	r := partialRatio("EXIT", "PLEASE USE THE EXIT DOOR")
	require.Greater(t, r, 90.0)
}

func TestTokenSortRatioIgnoresWordOrder(t *testing.T) {
	r := tokenSortRatio("fire exit", "exit fire")
	require.Equal(t, 100.0, r)
}

func TestCombinedScoreMatchesIdentical(t *testing.T) {
	require.Equal(t, 100.0, combinedScore("caution", "caution"))
}
