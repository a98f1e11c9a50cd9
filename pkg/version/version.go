package version

import (
	"fmt"
	"net/http"
	"runtime"
)

// This variables are injected at build time.

// JWKSResolverVersion hosts the version of the app.
var JWKSResolverVersion = "development"

// Commit is the commit hash of the build
var Commit string

// BuildDate is the date it was built
var BuildDate string

// GoVersion is the go version that was used to compile this
var GoVersion string

// UserAgent returns the User-Agent sent with every request to a JWKS
// endpoint.
func UserAgent() string {
	return fmt.Sprintf("jwks-resolver/%s (%s/%s)", JWKSResolverVersion, runtime.GOOS, runtime.GOARCH)
}

// SetUserAgent sets the User-Agent header of req.
func SetUserAgent(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent())
}
