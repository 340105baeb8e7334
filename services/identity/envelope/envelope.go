// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package envelope decrypts identity payloads sealed to the service key.
//
// Clients encrypt {userId, ip, fingerprint} with NaCl anonymous box
// (X25519 + XSalsa20-Poly1305) against the service public key. The
// service private key lives in a memguard enclave and is only held in
// plain form for the duration of a single decryption.
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the byte length of both halves of an envelope key pair.
const KeySize = 32

var (
	// ErrInvalidKey is returned for keys of the wrong length.
	ErrInvalidKey = errors.New("invalid key length")

	// ErrDecryptFailed is returned when a sealed payload does not open
	// against the service key. box.OpenAnonymous gives no more detail;
	// truncated, tampered, and misaddressed payloads all fail the same way.
	ErrDecryptFailed = errors.New("envelope decryption failed")
)

// Payload is the decrypted identity envelope.
type Payload struct {
	UserID      string `json:"userId"`
	IP          string `json:"ip"`
	Fingerprint string `json:"fingerprint"`
}

// Opener decrypts envelopes sealed to one service key pair.
//
// # Thread Safety
//
// Opener is safe for concurrent use. Each Open works on its own copy of
// the private key and destroys it before returning.
type Opener struct {
	pub     [KeySize]byte
	enclave *memguard.Enclave
}

// NewOpener seals the private key into an enclave. The privateKey slice
// is wiped by the call and must not be reused.
func NewOpener(publicKey [KeySize]byte, privateKey []byte) (*Opener, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes, want %d", ErrInvalidKey, len(privateKey), KeySize)
	}
	return &Opener{
		pub:     publicKey,
		enclave: memguard.NewEnclave(privateKey),
	}, nil
}

// PublicKey returns the public half of the service key pair.
func (o *Opener) PublicKey() [KeySize]byte {
	return o.pub
}

// Open decrypts one sealed payload.
//
// # Outputs
//
//   - *Payload: The decrypted identity triple.
//   - error: ErrDecryptFailed for anything that does not authenticate,
//     or a decode error when the plaintext is not the expected JSON.
func (o *Opener) Open(sealed []byte) (*Payload, error) {
	if len(sealed) < box.AnonymousOverhead {
		return nil, ErrDecryptFailed
	}

	keyBuf, err := o.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	priv := (*[KeySize]byte)(keyBuf.Bytes())
	plaintext, ok := box.OpenAnonymous(nil, sealed, &o.pub, priv)
	if !ok {
		return nil, ErrDecryptFailed
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}

// OpenBase64 decrypts one sealed payload from its wire form, standard
// base64 as carried in the ingest JSON body.
func (o *Opener) OpenBase64(blob string) (*Payload, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrDecryptFailed)
	}
	return o.Open(sealed)
}

// Seal encrypts a payload to a recipient public key. The service never
// seals in production; this is for client tooling and tests.
func Seal(p *Payload, recipient [KeySize]byte) ([]byte, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	sealed, err := box.SealAnonymous(nil, plaintext, &recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}
	return sealed, nil
}

// GenerateKeyPair creates a fresh X25519 key pair for envelope
// encryption. The caller owns wiping the returned private key.
func GenerateKeyPair() (pub [KeySize]byte, priv []byte, err error) {
	pubPtr, privPtr, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return pub, nil, fmt.Errorf("generate key pair: %w", err)
	}
	priv = make([]byte, KeySize)
	copy(priv, privPtr[:])
	for i := range privPtr {
		privPtr[i] = 0
	}
	return *pubPtr, priv, nil
}
