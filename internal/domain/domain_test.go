package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity("  alice ")
	require.NoError(t, err)
	assert.Equal(t, Identity("alice"), id)

	_, err = NewIdentity("   ")
	assert.ErrorIs(t, err, ErrIdentityEmpty)
	_, err = NewIdentity(strings.Repeat("x", MaxIdentityLen+1))
	assert.ErrorIs(t, err, ErrIdentityTooLong)
}

func TestGenerateIdentity(t *testing.T) {
	a, b := GenerateIdentity(), GenerateIdentity()
	assert.True(t, strings.HasPrefix(string(a), "user-"))
	assert.NotEqual(t, a, b)
	_, err := NewIdentity(string(a))
	assert.NoError(t, err)
}

func TestNewRoomName(t *testing.T) {
	r, err := NewRoomName(" style-consultation ")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoom, r)

	_, err = NewRoomName("")
	assert.ErrorIs(t, err, ErrRoomNameEmpty)
	_, err = NewRoomName(strings.Repeat("r", MaxRoomNameLen+1))
	assert.ErrorIs(t, err, ErrRoomNameTooLong)
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, OriginLocal, OriginOf(Participant{Identity: "alice", Agent: true}, "alice"))
	assert.Equal(t, OriginAgent, OriginOf(Participant{Identity: "agent-1", Agent: true}, "alice"))
	assert.Equal(t, OriginRemote, OriginOf(Participant{Identity: "bob"}, "alice"))

	ref := TrackRef{Origin: OriginAgent}
	assert.True(t, ref.IsAgent())
	assert.False(t, ref.IsLocal())
}

func TestSourceKind(t *testing.T) {
	assert.Equal(t, KindVideo, SourceCamera.Kind())
	assert.Equal(t, KindAudio, SourceMicrophone.Kind())
	assert.Equal(t, "camera", SourceCamera.String())
	assert.Equal(t, "FAILED", strings.ToUpper(PhaseFailed.String()))
}
