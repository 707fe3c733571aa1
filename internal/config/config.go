// Package config loads the CLI sample driver's settings from flags and
// an optional TOML file, in the style of the teacher pack's ghostctl
// config loader: a typed file struct decoded with BurntSushi/toml, whose
// toml.MetaData.IsDefined gates each override so a file need only
// mention the keys it wants to change.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// Config holds everything cmd/limec needs to dial a LIME server and run
// the handshake.
type Config struct {
	URI      string
	Identity string
	Password string
	Instance string

	Compression string
	Encryption  string

	TraceEnabled   bool
	ReceiveTimeout time.Duration

	DiagnosticsAddr string
}

func defaults() Config {
	return Config{
		URI:            "net.tcp://localhost:55321",
		Instance:       "default",
		Compression:    "none",
		Encryption:     "none",
		TraceEnabled:   false,
		ReceiveTimeout: 10 * time.Second,
	}
}

type fileConfig struct {
	URI             string `toml:"uri"`
	Identity        string `toml:"identity"`
	Password        string `toml:"password"`
	Instance        string `toml:"instance"`
	Compression     string `toml:"compression"`
	Encryption      string `toml:"encryption"`
	Trace           bool   `toml:"trace"`
	ReceiveTimeout  string `toml:"receive_timeout"`
	DiagnosticsAddr string `toml:"diagnostics_addr"`
}

// Load parses flagSet and, if -config names a file, layers its values on
// top of the defaults before flags override them: file values apply
// first, then any flag the caller actually passed on the command line.
func Load(args []string) (Config, error) {
	cfg := defaults()

	flagSet := pflag.NewFlagSet("limec", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a TOML config file")
	flagSet.StringVar(&cfg.URI, "uri", cfg.URI, "server URI, net.tcp://host:port")
	flagSet.StringVar(&cfg.Identity, "identity", cfg.Identity, "identity to authenticate as, name@domain")
	flagSet.StringVar(&cfg.Password, "password", cfg.Password, "plain authentication password")
	flagSet.StringVar(&cfg.Instance, "instance", cfg.Instance, "session instance name")
	flagSet.StringVar(&cfg.Compression, "compression", cfg.Compression, "compression option: none, gzip, or auto")
	flagSet.StringVar(&cfg.Encryption, "encryption", cfg.Encryption, "encryption option: none, tls, or auto")
	flagSet.BoolVar(&cfg.TraceEnabled, "trace", cfg.TraceEnabled, "trace SEND/RECEIVE frames")
	flagSet.DurationVar(&cfg.ReceiveTimeout, "receive-timeout", cfg.ReceiveTimeout, "session establishment timeout")
	flagSet.StringVar(&cfg.DiagnosticsAddr, "diagnostics-addr", cfg.DiagnosticsAddr, "address for the optional /healthz and /state HTTP endpoints")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(*configPath, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		applyFile(&cfg, raw, meta)
		// The flags are bound to cfg's fields, so parse again to put the
		// values passed on the command line back over the file's.
		if err := flagSet.Parse(args); err != nil {
			return Config{}, err
		}
	}

	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "uri":
			cfg.URI = f.Value.String()
		case "identity":
			cfg.Identity = f.Value.String()
		case "password":
			cfg.Password = f.Value.String()
		case "instance":
			cfg.Instance = f.Value.String()
		case "compression":
			cfg.Compression = f.Value.String()
		case "encryption":
			cfg.Encryption = f.Value.String()
		case "trace":
			cfg.TraceEnabled = strings.EqualFold(f.Value.String(), "true")
		case "receive-timeout":
			cfg.ReceiveTimeout, _ = time.ParseDuration(f.Value.String())
		case "diagnostics-addr":
			cfg.DiagnosticsAddr = f.Value.String()
		}
	})

	return cfg, nil
}

func applyFile(cfg *Config, raw fileConfig, meta toml.MetaData) {
	if meta.IsDefined("uri") {
		cfg.URI = raw.URI
	}
	if meta.IsDefined("identity") {
		cfg.Identity = raw.Identity
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("instance") {
		cfg.Instance = raw.Instance
	}
	if meta.IsDefined("compression") {
		cfg.Compression = raw.Compression
	}
	if meta.IsDefined("encryption") {
		cfg.Encryption = raw.Encryption
	}
	if meta.IsDefined("trace") {
		cfg.TraceEnabled = raw.Trace
	}
	if meta.IsDefined("receive_timeout") {
		if d, err := time.ParseDuration(raw.ReceiveTimeout); err == nil {
			cfg.ReceiveTimeout = d
		}
	}
	if meta.IsDefined("diagnostics_addr") {
		cfg.DiagnosticsAddr = raw.DiagnosticsAddr
	}
}
