package uid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Format(t *testing.T) {
	u := New()

	assert.True(t, strings.HasPrefix(u, "2.25."), "uid %q missing 2.25 root", u)
	assert.LessOrEqual(t, len(u), 64, "uid %q exceeds the 64-character limit", u)

	for _, c := range u {
		require.True(t, c == '.' || (c >= '0' && c <= '9'),
			"uid %q contains invalid character %q", u, c)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		u := New()
		require.False(t, seen[u], "duplicate uid %q", u)
		seen[u] = true
	}
}

func TestStorageClasses(t *testing.T) {
	classes := StorageClasses()
	require.NotEmpty(t, classes)
	assert.Contains(t, classes, CTImageStorage)
	assert.Contains(t, classes, MRImageStorage)

	for _, c := range classes {
		assert.True(t, strings.HasPrefix(c, "1.2.840.10008.5.1.4.1.1"),
			"unexpected storage class %q", c)
	}
}

func TestTransferSyntaxes_PreferenceOrder(t *testing.T) {
	syntaxes := TransferSyntaxes()
	require.NotEmpty(t, syntaxes)
	assert.Equal(t, ImplicitVRLittleEndian, syntaxes[0],
		"implicit VR little endian must be the first preference")
	assert.NotContains(t, syntaxes, Verification)
}
