package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/jetstack/jwks-resolver/pkg/jwksserver"
)

var serveOptions jwksserver.Options

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve a static JWKS document for testing",
	Long: `Serve a JWKS document from a local file at /.well-known/jwks.json,
with Prometheus metrics at /metrics. Use it as the endpoint of the get
command, or of any other client, when testing locally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		document, keys, err := jwksserver.LoadDocument(ctx, serveOptions.JWKSFile)
		if err != nil {
			return err
		}
		klog.FromContext(ctx).Info("Loaded JWKS document", "path", serveOptions.JWKSFile, "keys", keys)

		if err := jwksserver.New(serveOptions, document).ListenAndServe(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(
		&serveOptions.Listen,
		"listen",
		"l",
		":8080",
		"Address where to listen.",
	)
	serveCmd.Flags().StringVar(
		&serveOptions.JWKSFile,
		"jwks-file",
		"",
		"Path of the JWKS document to serve.",
	)
	serveCmd.Flags().StringVar(
		&serveOptions.AllowedToken,
		"token",
		"",
		"If set, requests for the document must carry this bearer token.",
	)
	serveCmd.Flags().BoolVar(
		&serveOptions.Compact,
		"compact",
		false,
		"Disables the colored request log.",
	)
	_ = serveCmd.MarkFlagRequired("jwks-file")
}
