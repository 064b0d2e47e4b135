package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdesk/pkg/model"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	tok, err := iss.Generate(model.User{ID: "u1", Username: "alice", DisplayName: "Alice", IsAdmin: true})
	require.NoError(t, err)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "Alice", claims.Name)
	assert.True(t, claims.Admin)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	tok, err := NewIssuer("one", time.Hour).Generate(model.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("s3cret", time.Minute)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return issued }
	tok, err := iss.Generate(model.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	iss.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseGarbage(t *testing.T) {
	_, err := NewIssuer("", 0).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalid)
}
