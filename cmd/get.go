package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/utils/ptr"

	"github.com/jetstack/jwks-resolver/api"
	"github.com/jetstack/jwks-resolver/pkg/jwks"
)

// getOptions holds the flags of the get command.
type getOptions struct {
	ConfigFile        string
	JwksURI           string
	KID               string
	All               bool
	NoCache           bool
	FileCache         bool
	FilePath          string
	CacheMaxAge       time.Duration
	CacheMaxEntries   int
	RateLimit         bool
	RequestsPerMinute int
	Headers           map[string]string
	Timeout           time.Duration
	Output            string
}

var getFlags getOptions

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "resolve a signing key by kid",
	Long: `Resolve a signing key by its key ID (kid) and print it as PEM. The
certificate of the key is printed when the JWKS document carries one,
otherwise its public key.

Settings are read from the file given with --config, and flags override them.`,
	Example: `  jwks-resolver get --jwks-uri https://my-authz-server/.well-known/jwks.json --kid NkFCNEE1NDFDNTQ5RTQ5OTE1QzRBMjYyMzY0NEJCQTJBMjJBQkZCMA
  jwks-resolver get --config client.yaml --all --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getFlags.clientConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return getFlags.run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getFlags.addFlags(getCmd.Flags())
}

func (o *getOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", "", "Path of a YAML client configuration file.")
	fs.StringVar(&o.JwksURI, "jwks-uri", "", "URL of the JWKS document.")
	fs.StringVar(&o.KID, "kid", "", "Key ID of the signing key to resolve.")
	fs.BoolVar(&o.All, "all", false, "Print all the signing keys of the JWKS document instead of one.")
	fs.BoolVar(&o.NoCache, "no-cache", false, "Disable the in-memory and file caches.")
	fs.BoolVar(&o.FileCache, "file-cache", false, "Persist resolved keys to a file and read them back on later runs.")
	fs.StringVar(&o.FilePath, "file-path", "", "Path of the file cache. Defaults to jwks-cache in the temporary directory.")
	fs.DurationVar(&o.CacheMaxAge, "cache-max-age", 0, "Expire keys from the in-memory cache after this long. 0 means never.")
	fs.IntVar(&o.CacheMaxEntries, "cache-max-entries", 0, "Maximum number of keys in the in-memory cache. 0 means no limit.")
	fs.BoolVar(&o.RateLimit, "rate-limit", false, "Limit the number of requests to the JWKS endpoint per minute.")
	fs.IntVar(&o.RequestsPerMinute, "requests-per-minute", jwks.DefaultJwksRequestsPerMinute, "Requests per minute allowed with --rate-limit.")
	fs.StringToStringVar(&o.Headers, "header", nil, "Extra request header, e.g. --header Authorization='Bearer token'. Can be repeated.")
	fs.DurationVar(&o.Timeout, "timeout", 30*time.Second, "Timeout of the request to the JWKS endpoint.")
	fs.StringVarP(&o.Output, "output", "o", "pem", `Output format, "pem" or "json".`)
}

// clientConfig builds the client configuration from the config file, if
// any, and the flags that were set.
func (o *getOptions) clientConfig(fs *pflag.FlagSet) (jwks.ClientConfig, error) {
	var cfg jwks.ClientConfig
	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = jwks.ParseConfig(data)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if o.ConfigFile == "" || fs.Changed("jwks-uri") {
		cfg.JwksURI = o.JwksURI
	}
	if fs.Changed("no-cache") {
		cfg.Cache = ptr.To(!o.NoCache)
	}
	if fs.Changed("file-cache") {
		cfg.UseTmpFileCache = o.FileCache
	}
	if fs.Changed("file-path") {
		cfg.FilePath = o.FilePath
	}
	if fs.Changed("cache-max-age") {
		cfg.CacheMaxAge = o.CacheMaxAge
	}
	if fs.Changed("cache-max-entries") {
		cfg.CacheMaxEntries = o.CacheMaxEntries
	}
	if fs.Changed("rate-limit") {
		cfg.RateLimit = o.RateLimit
	}
	if fs.Changed("requests-per-minute") || (cfg.RateLimit && cfg.JwksRequestsPerMinute == 0) {
		cfg.JwksRequestsPerMinute = o.RequestsPerMinute
	}
	if len(o.Headers) > 0 {
		if cfg.RequestHeaders == nil {
			cfg.RequestHeaders = map[string]string{}
		}
		for name, value := range o.Headers {
			cfg.RequestHeaders[name] = value
		}
	}
	if o.ConfigFile == "" || fs.Changed("timeout") {
		cfg.Timeout = o.Timeout
	}

	return cfg, nil
}

func (o *getOptions) run(ctx context.Context, cfg jwks.ClientConfig, out, errOut io.Writer) error {
	if o.Output != "pem" && o.Output != "json" {
		return fmt.Errorf("unsupported output format %q, use pem or json", o.Output)
	}
	if !o.All && o.KID == "" {
		return fmt.Errorf("either --kid or --all is required")
	}

	client, err := jwks.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}
	defer client.Close()

	var records []api.KeyRecord
	if o.All {
		records, err = client.GetSigningKeys(ctx)
	} else {
		var record api.KeyRecord
		record, err = client.GetSigningKey(ctx, o.KID)
		records = []api.KeyRecord{record}
	}
	if err != nil {
		return err
	}

	if o.Output == "json" {
		var v any = records
		if !o.All {
			v = records[0]
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal keys: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	for _, record := range records {
		color.New(color.FgCyan).Fprintf(errOut, "kid: %s kty: %s alg: %s\n", record.KID, record.KeyType, record.Algorithm)
		if _, err := io.WriteString(out, record.PEM()); err != nil {
			return err
		}
	}
	return nil
}
