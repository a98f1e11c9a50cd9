package jwks

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"k8s.io/klog/v2"

	"github.com/jetstack/jwks-resolver/api"
	"github.com/jetstack/jwks-resolver/pkg/logs"
	"github.com/jetstack/jwks-resolver/pkg/version"
)

const (
	// maxResponseSize bounds how much of a JWKS response is read. Key sets
	// are small; anything bigger is not a key set.
	maxResponseSize = 1 << 20

	// signatureUse is the only "use" value accepted for keys that set one.
	signatureUse = "sig"
)

// Fetcher retrieves the signing keys of a JWKS document.
type Fetcher interface {
	// Fetch performs one retrieval of the key set and returns every usable
	// key in document order.
	Fetch(ctx context.Context) ([]api.KeyRecord, error)
}

// Compile-time check that HTTPFetcher implements Fetcher
var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches a JWKS document with a single HTTP GET.
type HTTPFetcher struct {
	uri        string
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	clock      clockwork.Clock
}

// NewHTTPFetcher creates a fetcher for uri. If httpClient is nil, a pooled
// client from go-cleanhttp is used. Each header in headers is added to the
// request, and a non-zero timeout bounds the whole request.
func NewHTTPFetcher(uri string, httpClient *http.Client, headers map[string]string, timeout time.Duration, clock clockwork.Clock) *HTTPFetcher {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPFetcher{
		uri:        uri,
		httpClient: httpClient,
		headers:    headers,
		timeout:    timeout,
		clock:      clock,
	}
}

// Fetch retrieves and parses the JWKS document. Network failures and non-2xx
// answers give a *TransportError, a malformed body a *ParseError.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]api.KeyRecord, error) {
	logger := klog.FromContext(ctx).WithName("fetcher")

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	version.SetUserAgent(req)
	for name, value := range f.headers {
		req.Header.Set(name, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URI: f.uri, Code: networkErrorCode(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &TransportError{
			URI:        f.uri,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{URI: f.uri, Code: networkErrorCode(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	records, err := ParseKeySet(ctx, body, f.clock.Now())
	if err != nil {
		return nil, &ParseError{URI: f.uri, Err: err}
	}

	logger.V(logs.Debug).Info("Fetched JWKS", "uri", f.uri, "keys", len(records))
	return records, nil
}

// jwkHeader holds the fields of a JWK that are read without jwx: the
// identity of the key and its x5c chain, which may come without any raw key
// fields.
type jwkHeader struct {
	KeyID     string   `json:"kid"`
	KeyType   string   `json:"kty"`
	Algorithm string   `json:"alg"`
	Use       string   `json:"use"`
	X5c       []string `json:"x5c"`
}

// ParseKeySet parses a JWKS document into key records. Keys without a kid,
// keys meant for something else than signatures and keys without usable key
// material are skipped. When two keys share a kid the first one wins. Only a
// body that is not a JWKS document at all is an error.
func ParseKeySet(ctx context.Context, body []byte, fetchedAt time.Time) ([]api.KeyRecord, error) {
	logger := klog.FromContext(ctx).WithName("parser")

	var doc struct {
		Keys *[]json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc.Keys == nil {
		return nil, errors.New(`missing "keys" field`)
	}

	at := &api.Time{Time: fetchedAt.UTC().Truncate(time.Second)}
	seen := map[string]bool{}
	var records []api.KeyRecord

	for i, raw := range *doc.Keys {
		var header jwkHeader
		if err := json.Unmarshal(raw, &header); err != nil {
			logger.V(logs.Debug).Info("Skipping key that is not a JSON object", "index", i, "err", err)
			continue
		}

		if header.KeyID == "" {
			// skip any keys which don't have an ID
			logger.V(logs.Debug).Info("Skipping key without kid", "index", i)
			continue
		}

		if header.Use != "" && header.Use != signatureUse {
			logger.V(logs.Debug).Info("Skipping key not meant for signatures", "kid", header.KeyID, "use", header.Use)
			continue
		}

		if seen[header.KeyID] {
			logger.V(logs.Debug).Info("Skipping duplicate kid, the first key with this kid wins", "kid", header.KeyID)
			continue
		}

		record := api.KeyRecord{
			KID:       header.KeyID,
			Algorithm: header.Algorithm,
			KeyType:   header.KeyType,
			Use:       header.Use,
			FetchedAt: at,
		}

		if len(header.X5c) > 0 {
			cert, err := certificatePEM(header.X5c[0])
			if err != nil {
				logger.V(logs.Debug).Info("Ignoring unusable x5c chain", "kid", header.KeyID, "err", err)
			} else {
				record.Certificate = cert
			}
		}

		pub, err := publicKeyPEM(raw)
		if err != nil {
			logger.V(logs.Trace).Info("No raw public key", "kid", header.KeyID, "err", err)
		} else {
			record.PublicKey = pub
		}

		if !record.HasKeyMaterial() {
			logger.V(logs.Debug).Info("Skipping key without usable key material", "kid", header.KeyID)
			continue
		}

		seen[header.KeyID] = true
		records = append(records, record)
	}

	return records, nil
}

// certificatePEM turns a base64 DER certificate taken from an x5c chain into
// PEM, checking that it is a certificate on the way.
func certificatePEM(b64 string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

// publicKeyPEM builds the PKIX PEM of the public part of a raw JWK.
func publicKeyPEM(raw []byte) (string, error) {
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return "", err
	}

	pubKey, err := jwk.PublicKeyOf(key)
	if err != nil {
		return "", err
	}

	var rawKey any
	if err := jwk.Export(pubKey, &rawKey); err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(rawKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
