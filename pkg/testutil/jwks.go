package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// JWKSPath is the path at which JWKSServer serves its document.
const JWKSPath = "/.well-known/jwks.json"

// JWK is the JSON shape of a single key in a JWKS document. Only the fields
// used by the tests are listed.
type JWK struct {
	Kty string   `json:"kty,omitempty"`
	Use string   `json:"use,omitempty"`
	Kid string   `json:"kid,omitempty"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n,omitempty"`
	E   string   `json:"e,omitempty"`
	Crv string   `json:"crv,omitempty"`
	X   string   `json:"x,omitempty"`
	Y   string   `json:"y,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// JWKS is a JSON Web Key Set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JSON marshals the set, failing the test on error.
func (s JWKS) JSON(t testing.TB) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// NewRSAKey generates a 2048 bit RSA key.
func NewRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// NewECKey generates a P-256 key.
func NewECKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// RSAJWK returns the JWK for an RSA public key with raw n/e fields.
func RSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   b64(pub.N.Bytes()),
		E:   b64(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// ECJWK returns the JWK for a P-256 public key.
func ECJWK(kid string, pub *ecdsa.PublicKey) JWK {
	return JWK{
		Kty: "EC",
		Use: "sig",
		Alg: "ES256",
		Kid: kid,
		Crv: "P-256",
		X:   b64(pub.X.FillBytes(make([]byte, 32))),
		Y:   b64(pub.Y.FillBytes(make([]byte, 32))),
	}
}

// X5cJWK returns the JWK for an RSA key that also carries a self-signed
// certificate in its x5c chain. The DER of the certificate is returned too.
func X5cJWK(t testing.TB, kid string, key *rsa.PrivateKey) (JWK, []byte) {
	t.Helper()
	der := SelfSignedCertificate(t, key)
	jwk := RSAJWK(kid, &key.PublicKey)
	jwk.X5c = []string{base64.StdEncoding.EncodeToString(der)}
	return jwk, der
}

// SelfSignedCertificate returns the DER of a self-signed certificate for key.
func SelfSignedCertificate(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "jwks-resolver test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// JWKSServer is a test HTTP server serving a JWKS document at JWKSPath. The
// response can be changed while the server is running and every request is
// counted.
type JWKSServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	requests atomic.Int32
}

// NewJWKSServer starts a JWKSServer. It is closed when the test ends.
func NewJWKSServer(t testing.TB, statusCode int, body string) *JWKSServer {
	t.Helper()

	s := &JWKSServer{status: statusCode, body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != JWKSPath {
			http.NotFound(w, r)
			return
		}
		s.requests.Add(1)

		s.mu.Lock()
		status, body := s.status, s.body
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)

	return s
}

// JWKSURI returns the full URI of the served document.
func (s *JWKSServer) JWKSURI() string {
	return s.URL + JWKSPath
}

// Requests returns how many times the document was requested.
func (s *JWKSServer) Requests() int {
	return int(s.requests.Load())
}

// SetResponse changes what subsequent requests receive.
func (s *JWKSServer) SetResponse(statusCode int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = statusCode
	s.body = body
}
