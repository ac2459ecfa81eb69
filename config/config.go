package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server's bind, timeout, and feature-toggle settings
// (spec §6's "App interface (ingress to core)" toggle list: use_gzip,
// host_name, url_scheme, header_timeout, content_timeout, reuse_address,
// static_cache_control).
type Config struct {
	Port    int
	TLSPort int
	Env     string

	// Executors is the reactor pool size; zero means "detected hardware
	// parallelism" (spec §4.A).
	Executors int

	HeaderTimeout  time.Duration
	ContentTimeout time.Duration

	ReuseAddress       bool
	UseGzip            bool
	HostName           string
	URLScheme          string
	StaticCacheControl string

	// CompressWorkers sizes the worker pool the static responder offloads
	// gzip compression to; 0 compresses inline on the serving goroutine.
	CompressWorkers int
	// TuneGC applies the high-throughput GC profile at server Start.
	TuneGC bool

	// TLS, component H. Empty CertFile disables HTTPS.
	TLSCertFile         string
	TLSKeyFile          string
	TLSKeyPassphrase    string
	TLSKeyPassphraseEnv string
}

// New loads configuration from flags, then lets a handful of environment
// variables override the flag defaults the way the teacher's config.New
// did for PORT: PORT, WSGIBOOST_ENV, and the TLS key passphrase read
// from the variable named by -tls-key-passphrase-env. No other toggle
// has an environment override.
func New() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	flag.IntVar(&cfg.TLSPort, "tls-port", 8443, "HTTPS server port, used when -tls-cert is set")
	flag.IntVar(&cfg.Executors, "executors", 0, "reactor executor count (0 = NumCPU)")
	flag.StringVar(&cfg.Env, "env", "development", "environment (development/production)")
	flag.DurationVar(&cfg.HeaderTimeout, "header-timeout", 5*time.Second, "header-phase read timeout")
	flag.DurationVar(&cfg.ContentTimeout, "content-timeout", 300*time.Second, "content-phase read/write timeout")
	flag.BoolVar(&cfg.ReuseAddress, "reuse-address", true, "set SO_REUSEADDR on the listener")
	flag.BoolVar(&cfg.UseGzip, "gzip", true, "compress compressible static responses")
	flag.StringVar(&cfg.HostName, "host-name", "", "SERVER_NAME reported to the app (blank = resolved from listener)")
	flag.StringVar(&cfg.URLScheme, "url-scheme", "http", "wsgi.url_scheme reported to the app")
	flag.StringVar(&cfg.StaticCacheControl, "static-cache-control", "public, max-age=3600", "Cache-Control for static responses")
	flag.StringVar(&cfg.TLSCertFile, "tls-cert", "", "TLS certificate file (enables HTTPS when set)")
	flag.StringVar(&cfg.TLSKeyFile, "tls-key", "", "TLS private key file")
	flag.StringVar(&cfg.TLSKeyPassphraseEnv, "tls-key-passphrase-env", "WSGIBOOST_TLS_KEY_PASSPHRASE", "env var holding the TLS private key passphrase, if encrypted")
	flag.IntVar(&cfg.CompressWorkers, "compress-workers", 0, "worker pool size for offloaded gzip compression (0 = inline)")
	flag.BoolVar(&cfg.TuneGC, "tune-gc", false, "apply the high-throughput GC profile at startup")

	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			cfg.Port = v
		}
	}
	if env := os.Getenv("WSGIBOOST_ENV"); env != "" {
		cfg.Env = env
	}
	if cfg.TLSKeyPassphraseEnv != "" {
		cfg.TLSKeyPassphrase = os.Getenv(cfg.TLSKeyPassphraseEnv)
	}

	return cfg
}

// Addr is the plain-TCP listen address derived from Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TLSAddr is the HTTPS listen address derived from TLSPort.
func (c *Config) TLSAddr() string {
	return fmt.Sprintf(":%d", c.TLSPort)
}
