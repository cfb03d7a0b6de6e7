package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string
	BaseURL     string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool
	LogFile     string
}

// fileConfig mirrors the command line flags in an optional YAML file.
type fileConfig struct {
	Host        string `yaml:"host"`
	Port        uint   `yaml:"port"`
	BaseURL     string `yaml:"base_url"`
	DBUrl       string `yaml:"db_url"`
	TokenSecret string `yaml:"token_secret"`
	TokenTTL    uint   `yaml:"token_ttl"`
	Debug       bool   `yaml:"debug"`
	LogFile     string `yaml:"log_file"`
}

func ParseFlags() (Config, error) {
	return Parse(os.Args[1:])
}

// Parse reads the configuration from args. Flag defaults come from QF_*
// environment variables (a .env file is loaded first, if present); a YAML
// file named by -config fills every setting not given on the command line.
func Parse(args []string) (cfg Config, err error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("quick-forms", flag.ContinueOnError)

	var host string
	fs.StringVar(&host, "host", env("QF_HOST", "0.0.0.0"), "listen host name")
	var port uint
	fs.UintVar(&port, "port", envUint("QF_PORT", 80), "listen port number")
	fs.StringVar(&cfg.BaseURL, "base-url", env("QF_BASE_URL", ""), "public URL used in share links (default derived from host and port)")
	fs.StringVar(&cfg.DBUrl, "db-url", env("QF_DB_URL", "qforms.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("QF_TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	fs.UintVar(&ttl, "token-ttl", envUint("QF_TOKEN_TTL", 3600), "token TTL in seconds")
	fs.BoolVar(&cfg.Debug, "debug", env("QF_DEBUG", "") == "true", "log at DEBUG level")
	fs.StringVar(&cfg.LogFile, "log-file", env("QF_LOG_FILE", ""), "also write logs to this rotating file")
	var configFile string
	fs.StringVar(&configFile, "config", env("QF_CONFIG", ""), "optional YAML config file")

	if err = fs.Parse(args); err != nil {
		return
	}

	if configFile != "" {
		var fc fileConfig
		fc, err = readFile(configFile)
		if err != nil {
			return
		}

		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		if !explicit["host"] && fc.Host != "" {
			host = fc.Host
		}
		if !explicit["port"] && fc.Port != 0 {
			port = fc.Port
		}
		if !explicit["base-url"] && fc.BaseURL != "" {
			cfg.BaseURL = fc.BaseURL
		}
		if !explicit["db-url"] && fc.DBUrl != "" {
			cfg.DBUrl = fc.DBUrl
		}
		if !explicit["token-secret"] && fc.TokenSecret != "" {
			cfg.TokenSecret = fc.TokenSecret
		}
		if !explicit["token-ttl"] && fc.TokenTTL != 0 {
			ttl = fc.TokenTTL
		}
		if !explicit["debug"] && fc.Debug {
			cfg.Debug = true
		}
		if !explicit["log-file"] && fc.LogFile != "" {
			cfg.LogFile = fc.LogFile
		}
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Url()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func readFile(path string) (fc fileConfig, err error) {
	f, err := os.Open(path)
	if err != nil {
		return fc, fmt.Errorf("config.open: %w", err)
	}
	defer f.Close()

	if err = yaml.NewDecoder(f).Decode(&fc); err != nil {
		return fc, fmt.Errorf("config.decode: %w", err)
	}
	return fc, nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint) uint {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(n)
}
