package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain id passes through", "session-42", "session-42"},
		{"spaces and slashes collapse", "morning walk/../etc", "morning_walk_.._etc"},
		{"empty input", "", "unknown"},
		{"only junk", "///", "unknown"},
		{"leading dots trimmed", "..hidden", "hidden"},
		{"non-ascii replaced and collapsed", "trück#øll", "tr_ck_ll"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SanitizeFilename(tc.in))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	t.Parallel()

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	out := SanitizeFilename(string(long))
	assert.LessOrEqual(t, len(out), 128)
}
