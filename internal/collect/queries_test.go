package collect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustState(t *testing.T, s string) State {
	t.Helper()
	st, ok := LookupState(s)
	require.True(t, ok, "state %q", s)
	return st
}

func TestDefaultQuerySet_Counts(t *testing.T) {
	ct := mustState(t, "CT")

	full := DefaultQuerySet(ct, true)
	assert.Equal(t, 154, full.Len())

	// "al" is both the state code and a bigram.
	al := DefaultQuerySet(mustState(t, "Alabama"), true)
	assert.Equal(t, 153, al.Len())

	keywordsOnly := DefaultQuerySet(ct, false)
	assert.Equal(t, 43, keywordsOnly.Len())
}

func TestDefaultQuerySet_Order(t *testing.T) {
	terms := DefaultQuerySet(mustState(t, "new york"), true).Terms()

	assert.Equal(t, "foundation", terms[0])
	assert.Equal(t, "new york", terms[len(DefaultKeywords)])
	assert.Equal(t, "ny", terms[len(DefaultKeywords)+1])
	assert.Equal(t, "a", terms[len(DefaultKeywords)+2])
	assert.Equal(t, "yo", terms[len(terms)-1])
}

func TestNewQuerySet_NormalizesAndDedups(t *testing.T) {
	qs := NewQuerySet(" Arts ", "arts", "", "Health", "  ")
	assert.Equal(t, []string{"arts", "health"}, qs.Terms())
}

func TestQuerySet_TermsIsCopy(t *testing.T) {
	qs := NewQuerySet("arts")
	terms := qs.Terms()
	terms[0] = "changed"
	assert.Equal(t, "arts", qs.Terms()[0])
}

func writeQueryFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadQuerySet_Custom(t *testing.T) {
	path := writeQueryFile(t, `
keywords: [food bank, shelter]
include_state: false
include_alphabetical: false
extra: [pantry, Shelter]
`)

	qs, err := LoadQuerySet(path, mustState(t, "CT"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"food bank", "shelter", "pantry"}, qs.Terms())
}

func TestLoadQuerySet_DefaultsFillOmittedLists(t *testing.T) {
	path := writeQueryFile(t, "extra: [pantry]\n")

	qs, err := LoadQuerySet(path, mustState(t, "CT"), true)
	require.NoError(t, err)
	assert.Equal(t, 155, qs.Len())
	assert.Contains(t, qs.Terms(), "pantry")
	assert.Contains(t, qs.Terms(), "connecticut")
}

func TestLoadQuerySet_CustomBigrams(t *testing.T) {
	path := writeQueryFile(t, "keywords: []\ninclude_state: false\nbigrams: [zz]\n")

	qs, err := LoadQuerySet(path, mustState(t, "CT"), true)
	require.NoError(t, err)
	assert.Equal(t, 27, qs.Len())
	assert.Equal(t, "zz", qs.Terms()[26])
}

func TestLoadQuerySet_Errors(t *testing.T) {
	ct := mustState(t, "CT")

	_, err := LoadQuerySet(filepath.Join(t.TempDir(), "missing.yaml"), ct, false)
	require.Error(t, err)

	_, err = LoadQuerySet(writeQueryFile(t, "keywords: [unclosed"), ct, false)
	require.Error(t, err)

	_, err = LoadQuerySet(writeQueryFile(t, "keywords: []\ninclude_state: false\n"), ct, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terms")
}
