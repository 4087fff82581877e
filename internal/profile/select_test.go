package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreExactPlatformBeatsWildcard(t *testing.T) {
	exact := Profile{Identifier: "exact", SupportedPlatforms: []string{"deepstream-6"}}
	wild := Profile{Identifier: "wild", SupportedPlatforms: []string{AllWildcard}}
	both := Profile{Identifier: "both", SupportedPlatforms: []string{"deepstream-6", AllWildcard}}
	neither := Profile{Identifier: "neither", SupportedPlatforms: []string{"vaapi"}}

	require.Equal(t, 10, exact.Score("deepstream-6"))
	require.Equal(t, 1, wild.Score("deepstream-6"))
	require.Equal(t, 11, both.Score("deepstream-6"))
	require.Equal(t, -1, neither.Score("deepstream-6"))
}

func TestSelectPicksHighestScore(t *testing.T) {
	a := Profile{Identifier: "a", SupportedPlatforms: []string{AllWildcard}}
	b := Profile{Identifier: "b", SupportedPlatforms: []string{"deepstream-6"}}
	winner, err := Select([]Profile{a, b}, "deepstream-6")
	require.NoError(t, err)
	require.Equal(t, "b", winner.Identifier)
}

func TestSelectTieBreaksByLexicographicIdentifier(t *testing.T) {
	a := Profile{Identifier: "a", SupportedPlatforms: []string{AllWildcard}}
	c := Profile{Identifier: "c", SupportedPlatforms: []string{"vaapi", AllWildcard}}
	winner, err := Select([]Profile{c, a}, "other")
	require.NoError(t, err)
	require.Equal(t, "a", winner.Identifier)
}

func TestSelectFailsWhenNoneCompatible(t *testing.T) {
	a := Profile{Identifier: "a", SupportedPlatforms: []string{"vaapi"}}
	_, err := Select([]Profile{a}, "deepstream-6")
	require.Error(t, err)
	var notCompatible *NoCompatibleProfileError
	require.ErrorAs(t, err, &notCompatible)
}
