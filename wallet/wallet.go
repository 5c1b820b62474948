package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/globepay/meshpay/logx"
)

// Keypair is the device identity. The address is the base58 encoding of the
// ed25519 public key, so it can be recovered from the key alone.
type Keypair struct {
	Address    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate produces a fresh identity keypair. Fails only when the entropy
// source fails, which is fatal for the caller.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{
		Address:    base58.Encode(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// FromSeedHex rebuilds a keypair from a hex-encoded ed25519 seed. Accepts a
// full private key dump as well, using its trailing seed bytes.
func FromSeedHex(seedHex string) (*Keypair, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed hex: %w", err)
	}
	if len(seed) < ed25519.SeedSize {
		return nil, fmt.Errorf("seed too short: %d bytes", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed[len(seed)-ed25519.SeedSize:])
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		Address:    base58.Encode(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// LoadOrCreate loads the identity from keyFile, generating and persisting a
// new one on first run.
func LoadOrCreate(keyFile string) (*Keypair, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		return FromSeedHex(string(data))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file %s: %w", keyFile, err)
	}

	kp, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	seedHex := hex.EncodeToString(kp.PrivateKey.Seed())
	if err := os.WriteFile(keyFile, []byte(seedHex), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file %s: %w", keyFile, err)
	}
	logx.Info("WALLET", "Generated new identity: ", kp.Address)
	return kp, nil
}

// Sign signs the canonical message bytes and returns a base58 signature.
func Sign(message []byte, priv ed25519.PrivateKey) string {
	return base58.Encode(ed25519.Sign(priv, message))
}

// Verify checks a base58 signature against the base58 address that issued it.
// It never panics; malformed key or signature bytes yield false.
func Verify(message []byte, signatureB58 string, address string) bool {
	pub, err := addressToPublicKey(address)
	if err != nil {
		return false
	}
	signature, err := base58.Decode(signatureB58)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// HashMessage is the content-addressing digest over the canonical message.
// The ledger recomputes this independently, so the encoding is fixed: sha256
// over the exact bytes, hex encoded.
func HashMessage(message []byte) string {
	sum256 := sha256.Sum256(message)
	return hex.EncodeToString(sum256[:])
}

func addressToPublicKey(address string) (ed25519.PublicKey, error) {
	b, err := base58.Decode(address)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid pubkey")
	}
	return ed25519.PublicKey(b), nil
}
