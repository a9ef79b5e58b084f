// Package config loads service settings from an env file, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const envPrefix = "MAILSCRAPER"

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type OAuthConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	CredentialsFile string `mapstructure:"credentials_file"`
	RedirectURL     string `mapstructure:"redirect_url"`
}

type TokenConfig struct {
	// Store is "file" or "keyring".
	Store           string `mapstructure:"store"`
	File            string `mapstructure:"file"`
	KeyringService  string `mapstructure:"keyring_service"`
	KeyringDir      string `mapstructure:"keyring_dir"`
	KeyringPassword string `mapstructure:"keyring_password"`
}

type ResultsConfig struct {
	// Backend is "file" or "sqlite".
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ScrapeConfig struct {
	MissingHeaderPolicy string `mapstructure:"missing_header_policy"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the top-level service configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	OAuth   OAuthConfig   `mapstructure:"oauth"`
	Token   TokenConfig   `mapstructure:"token"`
	Results ResultsConfig `mapstructure:"results"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Log     LogConfig     `mapstructure:"log"`
	MCP     MCPConfig     `mapstructure:"mcp"`
}

var defaults = map[string]any{
	"http.addr":                    "0.0.0.0:8000",
	"oauth.client_id":              "",
	"oauth.client_secret":          "",
	"oauth.credentials_file":       "credentials.json",
	"oauth.redirect_url":           "",
	"token.store":                  "file",
	"token.file":                   "token.json",
	"token.keyring_service":        "mailscraper",
	"token.keyring_dir":            "~/.config/mailscraper/keyring",
	"token.keyring_password":       "",
	"results.backend":              "file",
	"results.dir":                  ".",
	"results.sqlite_path":          "email_results.db",
	"scrape.missing_header_policy": "fail",
	"log.level":                    "info",
	"log.development":              false,
	"mcp.enabled":                  true,
}

// Load reads envFile (if set) into the process environment, then path (if
// set) and MAILSCRAPER_* variables. OAUTH_GOOGLE_CLIENT_ID and
// OAUTH_GOOGLE_CLIENT_SECRET are accepted for the client credentials.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("oauth.client_id", envPrefix+"_OAUTH_CLIENT_ID", "OAUTH_GOOGLE_CLIENT_ID"); err != nil {
		return nil, fmt.Errorf("v.BindEnv failed: %w", err)
	}
	if err := v.BindEnv("oauth.client_secret", envPrefix+"_OAUTH_CLIENT_SECRET", "OAUTH_GOOGLE_CLIENT_SECRET"); err != nil {
		return nil, fmt.Errorf("v.BindEnv failed: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s failed: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("v.Unmarshal failed: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Token.Store {
	case "file", "keyring":
	default:
		return fmt.Errorf("token.store must be file or keyring, got %q", c.Token.Store)
	}

	switch c.Results.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("results.backend must be file or sqlite, got %q", c.Results.Backend)
	}

	return nil
}

// OAuth2 builds the Gmail read-only OAuth client config. Explicit client
// credentials win over the client-secret file. listenAddr supplies the
// default redirect to this server's /oauth handler.
func (c *Config) OAuth2(listenAddr string) (*oauth2.Config, error) {
	redirect := c.OAuth.RedirectURL
	if redirect == "" {
		redirect = fmt.Sprintf("http://%s/oauth", browsableAddr(listenAddr))
	}

	if c.OAuth.ClientID != "" && c.OAuth.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     c.OAuth.ClientID,
			ClientSecret: c.OAuth.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	if c.OAuth.CredentialsFile == "" {
		return nil, errors.New("oauth client id and secret or a credentials file must be configured")
	}

	b, err := os.ReadFile(c.OAuth.CredentialsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no oauth client credentials: set OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET or provide %s", c.OAuth.CredentialsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile failed: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google.ConfigFromJSON failed: %w", err)
	}
	cfg.RedirectURL = redirect

	return cfg, nil
}

// browsableAddr replaces wildcard hosts so the redirect works in a browser.
func browsableAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
