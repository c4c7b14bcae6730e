package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/camuig/smartapi-proxy/internal/config"
	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/smartapi"
	"github.com/camuig/smartapi-proxy/internal/symbols"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbolList := flag.String("symbols", "RELIANCE,TCS,HDFCBANK,INFY", "comma separated symbols")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if !cfg.HasAccount() {
		fmt.Fprintln(os.Stderr, "account credentials are not configured (ANGEL_CLIENT_ID and friends)")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout()}

	table, err := symbols.Load(ctx, httpClient, cfg.Symbols.File, cfg.Symbols.ScripMasterURL, cfg.SmartAPI.Exchange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "symbols error: %v\n", err)
		os.Exit(1)
	}

	manager := session.NewManager(session.SmartAPIDialer(
		smartapi.WithBaseURL(cfg.SmartAPI.BaseURL),
		smartapi.WithHTTPClient(httpClient),
		smartapi.WithClientInfo(cfg.SmartAPI.ClientLocalIP, cfg.SmartAPI.ClientPublicIP, cfg.SmartAPI.MACAddress),
	), log, session.WithLoginTimeout(cfg.LoginTimeout()))

	sess, err := manager.Login(ctx, session.Credentials{
		APIKey:     cfg.Account.APIKey,
		ClientID:   cfg.Account.ClientID,
		Password:   cfg.Account.Password,
		TOTPSecret: cfg.Account.TOTPSecret,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "login error: %v\n", err)
		os.Exit(1)
	}

	var syms []string
	for _, s := range strings.Split(*symbolList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			syms = append(syms, s)
		}
	}

	agg := quotes.NewAggregator(table, log,
		quotes.WithExchange(cfg.SmartAPI.Exchange),
		quotes.WithConcurrency(cfg.Quotes.Concurrency),
		quotes.WithCallTimeout(cfg.QuoteCallTimeout()),
	)

	var failed int
	for _, r := range agg.GetQuotes(ctx, sess, syms) {
		if !r.OK() {
			fmt.Fprintf(os.Stderr, "  [FAIL] %s: %v\n", r.Symbol, r.Err)
			failed++
			continue
		}
		q := r.Quote
		fmt.Printf("  [OK]   %-12s ltp %10.2f  chg %8.2f (%6.2f%%)  o %.2f h %.2f l %.2f c %.2f\n",
			r.Symbol, q.LTP, q.Change, q.PChange, q.Open, q.High, q.Low, q.Close)
	}

	fmt.Printf("\nDone: %d ok, %d failed.\n", len(syms)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
