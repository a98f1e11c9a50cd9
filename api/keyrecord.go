package api

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeyRecord is a signing key resolved from a JWKS document. Records are
// immutable once resolved and are identified by their KID.
type KeyRecord struct {
	// KID is the key identifier taken from the "kid" field of the JWK.
	KID string `json:"kid"`
	// Algorithm is the optional "alg" field of the JWK.
	Algorithm string `json:"alg,omitempty"`
	// KeyType is the "kty" field of the JWK, e.g. RSA or EC.
	KeyType string `json:"kty,omitempty"`
	// Use is the optional "use" field of the JWK.
	Use string `json:"use,omitempty"`

	// Certificate is the PEM encoded leaf certificate of the "x5c" chain.
	Certificate string `json:"certificate,omitempty"`
	// PublicKey is the PEM encoded PKIX public key built from the raw key
	// fields (n/e for RSA, crv/x/y for EC, ...).
	PublicKey string `json:"publicKey,omitempty"`

	// FetchedAt is when the JWKS document holding this key was fetched.
	FetchedAt *Time `json:"fetchedAt,omitempty"`
}

// PEM returns the key material of the record: the certificate when the JWK
// carried an x5c chain, the PKIX public key otherwise.
func (r KeyRecord) PEM() string {
	if r.Certificate != "" {
		return r.Certificate
	}
	return r.PublicKey
}

// HasKeyMaterial reports whether the record carries a certificate or a
// public key. Records loaded from a hand-written file cache may not.
func (r KeyRecord) HasKeyMaterial() bool {
	return r.PEM() != ""
}

// CryptoPublicKey decodes the PEM key material into a crypto.PublicKey that
// can be handed to a signature verifier.
func (r KeyRecord) CryptoPublicKey() (crypto.PublicKey, error) {
	data := r.PEM()
	if data == "" {
		return nil, fmt.Errorf("key %q has no key material", r.KID)
	}

	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("key %q: invalid PEM", r.KID)
	}

	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("key %q: failed to parse certificate: %w", r.KID, err)
		}
		return cert.PublicKey, nil
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("key %q: failed to parse public key: %w", r.KID, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("key %q: unsupported PEM block type %q", r.KID, block.Type)
	}
}
