// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package envelope

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpener(t *testing.T) *Opener {
	t.Helper()

	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	opener, err := NewOpener(pub, priv)
	require.NoError(t, err)
	return opener
}

func TestOpen_RoundTrip(t *testing.T) {
	opener := newTestOpener(t)

	want := &Payload{
		UserID:      "user-123",
		IP:          "203.0.113.7",
		Fingerprint: "fp-abc",
	}

	sealed, err := Seal(want, opener.PublicKey())
	require.NoError(t, err)

	got, err := opener.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpen_EnclaveSurvivesRepeatedUse(t *testing.T) {
	opener := newTestOpener(t)

	for i := 0; i < 3; i++ {
		sealed, err := Seal(&Payload{UserID: "user-123"}, opener.PublicKey())
		require.NoError(t, err)

		got, err := opener.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "user-123", got.UserID)
	}
}

func TestOpenBase64(t *testing.T) {
	opener := newTestOpener(t)

	want := &Payload{UserID: "user-123", IP: "203.0.113.7", Fingerprint: "fp-abc"}
	sealed, err := Seal(want, opener.PublicKey())
	require.NoError(t, err)

	got, err := opener.OpenBase64(base64.StdEncoding.EncodeToString(sealed))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = opener.OpenBase64("not%base64!")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	opener := newTestOpener(t)

	sealed, err := Seal(&Payload{UserID: "user-123"}, opener.PublicKey())
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff

	_, err = opener.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpen_TruncatedInput(t *testing.T) {
	opener := newTestOpener(t)

	_, err := opener.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = opener.Open(nil)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpen_WrongRecipient(t *testing.T) {
	opener := newTestOpener(t)

	otherPub, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)
	_ = otherPriv

	sealed, err := Seal(&Payload{UserID: "user-123"}, otherPub)
	require.NoError(t, err)

	_, err = opener.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewOpener_RejectsBadKeyLength(t *testing.T) {
	var pub [KeySize]byte

	_, err := NewOpener(pub, []byte("too-short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGenerateKeyPair_Distinct(t *testing.T) {
	pubA, privA, err := GenerateKeyPair()
	require.NoError(t, err)
	pubB, privB, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, pubA, pubB)
	assert.NotEqual(t, privA, privB)
	assert.Len(t, privA, KeySize)
}
