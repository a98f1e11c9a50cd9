// Package jwks provides a client resolving the signing keys of a JSON Web Key
// Set (JWKS) endpoint by key ID (kid).
//
// Keys are looked up in an in-memory cache, then in an optional file cache,
// and only then fetched from the endpoint. A fetch caches every key of the
// document. Fetches can be rate limited to a number of requests per rolling
// minute.
//
// This package uses github.com/lestrrat-go/jwx/v3/jwk to turn raw JWK fields
// into public keys. Certificates from x5c chains are used as they are.
//
// Verifying tokens with the resolved keys is left to the caller.
package jwks
