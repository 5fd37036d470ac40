// streamtap opens one credential's stream and prints normalized events to
// the console.
// Usage: go run ./cmd/streamtap --config configs/marketstream.example.yaml --credential kis-main --symbols 005930,AAPL
//
// Symbols default to the credential's configured list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/credential"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/marketstream.example.yaml", "path to config file")
	credID := flag.String("credential", "", "credential id to stream (default: first configured)")
	symbols := flag.String("symbols", "", "comma-separated symbols (default: the credential's list)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	godotenv.Load()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	resolver := credential.NewStaticResolver(cfg.Credentials)
	id := *credID
	if id == "" {
		ids := resolver.IDs()
		if len(ids) == 0 {
			logger.Error("no credentials configured")
			os.Exit(1)
		}
		id = ids[0]
	}
	cred, err := resolver.Resolve(ctx, id)
	if err != nil {
		logger.Error("unknown credential", "credential", id, "error", err)
		os.Exit(1)
	}

	regCfg, err := market.ConfigFrom(cfg)
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	registry := market.NewRegistry(resolver, regCfg, nil, nil, logger)

	handle, err := registry.GetOrCreate(ctx, id)
	if err != nil {
		logger.Error("failed to open stream", "credential", id, "error", err)
		os.Exit(1)
	}

	syms := cred.Symbols
	if *symbols != "" {
		syms = strings.Split(*symbols, ",")
	}
	for _, s := range syms {
		if err := handle.Subscribe(ctx, strings.TrimSpace(s)); err != nil {
			logger.Error("subscribe failed", "symbol", s, "error", err)
		}
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, st := range registry.Stats() {
					for _, s := range st.Sessions {
						logger.Info("stats",
							"leg", s.Name,
							"state", s.State,
							"frames", s.Frames,
							"dropped", s.Dropped,
							"events", s.Events,
							"reconnects", s.Reconnects,
						)
					}
				}
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "credential", id, "family", cred.Family, "symbols", syms)

	for {
		ev, err := handle.NextEvent(ctx)
		if err != nil {
			if !errors.Is(err, stream.ErrStreamEnded) && ctx.Err() == nil {
				logger.Error("stream failed", "error", err)
			}
			break
		}
		printEvent(ev, *verbose)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	registry.Close(shutdownCtx)

	logger.Info("shutdown complete")
}

func printEvent(ev model.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(ev.Kind)), data)
		return
	}

	switch ev.Kind {
	case model.KindQuote:
		q := ev.Quote
		fmt.Printf("[QUOTE] %s/%s ticker=%s price=%s change=%s (%s) vol=%s\n",
			ev.Exchange, ev.Leg, q.Ticker, q.CurrentPrice, q.PriceChange, q.ChangePercent, q.Volume)
	case model.KindOrderBook:
		b := ev.OrderBook
		best := func(levels []model.PriceLevel) string {
			if len(levels) == 0 {
				return "-"
			}
			return levels[0].Price.String() + "x" + levels[0].Quantity.String()
		}
		fmt.Printf("[BOOK] %s/%s ticker=%s bid=%s ask=%s levels=%d/%d\n",
			ev.Exchange, ev.Leg, b.Ticker, best(b.Bids), best(b.Asks), len(b.Bids), len(b.Asks))
	case model.KindTrade:
		t := ev.Trade
		fmt.Printf("[TRADE] %s/%s ticker=%s id=%s side=%s price=%s qty=%s\n",
			ev.Exchange, ev.Leg, t.Ticker, t.ID, t.Side, t.Price, t.Quantity)
	case model.KindError:
		fmt.Printf("[ERROR] %s/%s %s\n", ev.Exchange, ev.Leg, ev.Message)
	}
}
