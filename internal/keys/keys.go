// Package keys provides Ed25519 caller identities and HTTP request signing
// for the agentproof ledger API. A caller's address is derived from its
// public key, so signed requests authenticate the address they act as.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"
)

// TimestampWindow is the maximum age of a signed request before it is
// rejected.
const TimestampWindow = 5 * time.Minute

// AddressFromPublicKey derives a caller address: the last 20 bytes of the
// SHA3-256 digest of the public key, lowercase hex.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha3.Sum256(pub)
	return hex.EncodeToString(sum[12:])
}

// Generate creates a fresh Ed25519 keypair.
func Generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pub, priv, nil
}

// Save writes a private key seed to path as hex, owner-readable only.
func Save(path string, priv ed25519.PrivateKey) error {
	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0o600); err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	return nil
}

// Load reads a hex seed written by Save and reconstructs the keypair.
func Load(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}
	seedHex := string(data)
	for len(seedHex) > 0 && (seedHex[len(seedHex)-1] == '\n' || seedHex[len(seedHex)-1] == '\r') {
		seedHex = seedHex[:len(seedHex)-1]
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("load key: invalid seed hex")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// SignRequest adds X-Proof-Key, X-Proof-Timestamp, and X-Proof-Signature
// headers to an outgoing HTTP request. The signature covers:
//
//	method + path + timestamp + body
func SignRequest(req *http.Request, priv ed25519.PrivateKey, body []byte) {
	pub := priv.Public().(ed25519.PublicKey)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req.Header.Set("X-Proof-Key", hex.EncodeToString(pub))
	req.Header.Set("X-Proof-Timestamp", ts)

	msg := req.Method + req.URL.Path + ts + string(body)
	sig := ed25519.Sign(priv, []byte(msg))
	req.Header.Set("X-Proof-Signature", hex.EncodeToString(sig))
}

// VerifyRequest checks the signing headers on an inbound request and returns
// the authenticated caller address. It verifies that:
//  1. The timestamp is within TimestampWindow of the current time.
//  2. The Ed25519 signature is valid for the reconstructed message.
func VerifyRequest(req *http.Request, body []byte) (string, error) {
	keyHex := req.Header.Get("X-Proof-Key")
	tsStr := req.Header.Get("X-Proof-Timestamp")
	sigHex := req.Header.Get("X-Proof-Signature")

	if keyHex == "" {
		return "", fmt.Errorf("missing X-Proof-Key header")
	}
	if tsStr == "" {
		return "", fmt.Errorf("missing X-Proof-Timestamp header")
	}
	if sigHex == "" {
		return "", fmt.Errorf("missing X-Proof-Signature header")
	}

	pubBytes, err := hex.DecodeString(keyHex)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key hex")
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp: %w", err)
	}
	diff := math.Abs(float64(time.Now().Unix() - ts))
	if diff > TimestampWindow.Seconds() {
		return "", fmt.Errorf("timestamp expired: %.0fs drift exceeds %v window", diff, TimestampWindow)
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", fmt.Errorf("invalid signature hex: %w", err)
	}

	msg := req.Method + req.URL.Path + tsStr + string(body)
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), []byte(msg), sig) {
		return "", fmt.Errorf("ed25519 signature verification failed")
	}

	return AddressFromPublicKey(pubBytes), nil
}
