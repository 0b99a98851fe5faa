package call

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelName_SymmetricAcrossArgumentOrder(t *testing.T) {
	a := ChannelName("alice-123", "bob-456")
	b := ChannelName("bob-456", "alice-123")

	assert.Equal(t, a, b, "both peers must derive the identical channel name")
	assert.Equal(t, "call_alice123_bob456", a)
}

func TestChannelName_SanitizesIDs(t *testing.T) {
	name := ChannelName("user@mail.com", "other#1!")

	assert.Equal(t, "call_other1_usermailcom", name)
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		assert.True(t, ok, "unexpected character %q in channel name", r)
	}
}

func TestChannelName_CappedAt64Bytes(t *testing.T) {
	long := strings.Repeat("a", 100)
	other := strings.Repeat("b", 100)

	name := ChannelName(long, other)

	assert.LessOrEqual(t, len(name), 64)
	// Still symmetric after truncation
	assert.Equal(t, name, ChannelName(other, long))
}

func TestChannelName_SortsLexicographically(t *testing.T) {
	name := ChannelName("zed", "amy")
	assert.Equal(t, "call_amy_zed", name)
}
