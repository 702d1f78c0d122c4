package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("0b7c4c1e-job", "basketball_series.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	jobID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "0b7c4c1e-job", jobID)
	require.Equal(t, "basketball_series.csv", path)
	require.True(t, expiresAt.Equal(parsedExpiry))
}

func TestSignedURLSignerExpired(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.now = func() time.Time { return now }
	token, _, err := signer.Generate("job-1", "exports/file.csv")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, _, _, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	jobID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "job-1", jobID)
	require.Equal(t, "exports/file.csv", path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "exports/file.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "job-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token, false)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, _, err = signer.Parse("not-a-token", false)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = signer.Generate("job.1", "x.csv")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("", time.Hour).Generate("job-1", "x.csv")
	assert.Error(t, err)
}
