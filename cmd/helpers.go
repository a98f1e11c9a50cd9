package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/jetstack/jwks-resolver/pkg/version"
)

func printVersion(out io.Writer, verbose bool) {
	fmt.Fprintln(out, "jwks-resolver version: ", version.JWKSResolverVersion, runtime.GOOS+"/"+runtime.GOARCH)
	if verbose {
		fmt.Fprintln(out, "  Commit: ", version.Commit)
		fmt.Fprintln(out, "  Built:  ", version.BuildDate)
		fmt.Fprintln(out, "  Go:     ", runtime.Version())
	}
}
