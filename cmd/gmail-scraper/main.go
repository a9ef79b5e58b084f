// Gmail scraper serves GET /scrape/ and persists matching message subjects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hal9000y/gmail-scraper/internal/api"
	"github.com/hal9000y/gmail-scraper/internal/auth"
	"github.com/hal9000y/gmail-scraper/internal/config"
	"github.com/hal9000y/gmail-scraper/internal/gservice"
	"github.com/hal9000y/gmail-scraper/internal/logger"
	"github.com/hal9000y/gmail-scraper/internal/scrape"
	"github.com/hal9000y/gmail-scraper/internal/store"
	"github.com/hal9000y/gmail-scraper/internal/tool"
)

const keyringTokenKey = "gmail-oauth-token"

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", "", "Path to env file")
	httpAddr := flag.String("http-addr", "", "HTTP server listen addr, overrides http.addr")

	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		panic(fmt.Errorf("config.Load failed: %w", err))
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(fmt.Errorf("logger.New failed: %w", err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Errorw("Exiting", "error", err)
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	policy, err := scrape.ParseMissingHeaderPolicy(cfg.Scrape.MissingHeaderPolicy)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}

	oauthCfg, err := cfg.OAuth2(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return err
	}

	tokenStore, err := openTokenStore(cfg.Token)
	if err != nil {
		_ = ln.Close()
		return err
	}

	tok, err := auth.NewToken(oauthCfg, tokenStore, log)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("auth.NewToken failed: %w", err)
	}

	defer func() {
		log.Info("Persisting token if exists")
		if err := tok.Persist(); err != nil {
			log.Errorw("tok.Persist failed", "error", err)
		}
	}()

	sink, closeSink, err := openSink(cfg.Results)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer closeSink()

	scraper := scrape.NewScraper(gservice.NewGmail(tok), sink, log, policy)

	mux := http.NewServeMux()
	mux.Handle("GET /scrape/", api.NewScrapeHandler(scraper, log))
	mux.HandleFunc("GET /healthz", api.Healthz)
	mux.Handle("/oauth", auth.NewHTTPHandler(tok, log))

	if cfg.MCP.Enabled {
		mcpSrv := tool.NewServer(scraper)
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mcpSrv }, nil))
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		openBrowser(log, oauthCfg.RedirectURL)
	}

	stopHTTP, errHTTPCh := serveHTTP(srv, ln, log)
	defer stopHTTP()

	select {
	case err := <-errHTTPCh:
		return err
	case <-shutdown:
		log.Info("Shutdown signal received")
	}

	return nil
}

func openTokenStore(cfg config.TokenConfig) (auth.Store, error) {
	if cfg.Store == "keyring" {
		ring, err := auth.OpenKeyring(cfg.KeyringService, cfg.KeyringDir, cfg.KeyringPassword)
		if err != nil {
			return nil, err
		}
		return auth.NewKeyringStore(ring, keyringTokenKey), nil
	}

	return auth.NewFileStore(cfg.File), nil
}

func openSink(cfg config.ResultsConfig) (scrape.Sink, func(), error) {
	if cfg.Backend == "sqlite" {
		sink, err := store.NewSQLiteSink(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("store.NewSQLiteSink failed: %w", err)
		}
		return sink, func() { _ = sink.Close() }, nil
	}

	return store.NewFileSink(cfg.Dir), func() {}, nil
}

func serveHTTP(srv *http.Server, ln net.Listener, log *zap.SugaredLogger) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		log.Infow("Starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errHTTPCh <- fmt.Errorf("srv.Serve failed: %w", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorw("srv.Shutdown failed", "error", err)
		}

		<-errHTTPCh
		log.Info("HTTP server stopped")
	}, errHTTPCh
}

func openBrowser(log *zap.SugaredLogger, url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Warnw("Could not open browser automatically, please open the link manually", "url", url, "error", err)
	}
}
