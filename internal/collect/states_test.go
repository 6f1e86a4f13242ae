package collect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStates(t *testing.T) {
	all := States()
	assert.Len(t, all, 56)

	codes := make(map[string]bool, len(all))
	for _, s := range all {
		assert.Len(t, s.Code, 2)
		assert.False(t, codes[s.Code], "duplicate %s", s.Code)
		codes[s.Code] = true
	}
}

func TestLookupState(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"CT", "CT", true},
		{"ct", "CT", true},
		{"Connecticut", "CT", true},
		{"  new   hampshire ", "NH", true},
		{"DISTRICT OF COLUMBIA", "DC", true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := LookupState(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestState_SearchTerms(t *testing.T) {
	st, _ := LookupState("RI")
	assert.Equal(t, []string{"rhode island", "ri"}, st.searchTerms())
}
