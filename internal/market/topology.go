package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/api"
	"github.com/rickgao/market-stream/internal/auth"
	"github.com/rickgao/market-stream/internal/codec"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/credential"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/sim"
	"github.com/rickgao/market-stream/internal/stream"
)

// DefaultUSExchange is the KIS overseas key prefix used when a credential
// does not name one.
const DefaultUSExchange = "DNAS"

// KISApprovalTTL is how long an issued approval key is reused before a new
// one is requested.
const KISApprovalTTL = 12 * time.Hour

// Config holds what the Registry needs to build stream topologies.
type Config struct {
	Exchanges config.ExchangesConfig
	Session   config.SessionConfig
	Simulator sim.Config
}

// ConfigFrom extracts the registry configuration from a loaded config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	sc := sim.DefaultConfig()
	if cfg.Simulator.Interval > 0 {
		sc.Interval = cfg.Simulator.Interval
	}
	if cfg.Simulator.Volatility != "" {
		v, err := decimal.NewFromString(cfg.Simulator.Volatility)
		if err != nil {
			return Config{}, fmt.Errorf("%w: simulator volatility %q", model.ErrConfiguration, cfg.Simulator.Volatility)
		}
		sc.Volatility = v
	}
	sc.Seed = cfg.Simulator.Seed

	return Config{
		Exchanges: cfg.Exchanges,
		Session:   cfg.Session,
		Simulator: sc,
	}, nil
}

// build assembles the unified stream for cred without starting it.
func (r *Registry) build(cred credential.Credential) (*entry, error) {
	logger := r.logger.With("credential", cred.ID, "family", cred.Family)
	u := stream.NewUnified(r.cfg.Session.BufferSize, logger)
	e := &entry{cred: cred, stream: u, createdAt: time.Now()}

	switch strings.ToLower(cred.Family) {
	case credential.FamilyKIS:
		keys, err := r.approvalKeys(cred, logger)
		if err != nil {
			return nil, err
		}
		url := endpoint(cred, r.cfg.Exchanges.KISURL)

		kr := codec.NewWire(model.ExchangeKIS)
		kr.Channels = codec.KISDomesticChannels

		us := codec.NewWire(model.ExchangeKIS)
		us.Channels = codec.KISOverseasChannels
		us.KeyPrefix = cred.USExchange
		if us.KeyPrefix == "" {
			us.KeyPrefix = DefaultUSExchange
		}

		for _, leg := range []struct {
			name string
			wire codec.Wire
		}{{stream.LegKR, kr}, {stream.LegUS, us}} {
			s := r.session(logger, leg.name, url, r.cfg.Exchanges.KISSpacing, leg.wire)
			s.UseToken(keys.Token)
			if err := r.attach(e, s); err != nil {
				return nil, err
			}
		}

	case credential.FamilyUpbit:
		s := r.session(logger, string(model.ExchangeUpbit), endpoint(cred, r.cfg.Exchanges.UpbitURL), 0, codec.NewWire(model.ExchangeUpbit))
		if err := r.attach(e, s); err != nil {
			return nil, err
		}

	case credential.FamilyBithumb:
		s := r.session(logger, string(model.ExchangeBithumb), endpoint(cred, r.cfg.Exchanges.BithumbURL), 0, codec.NewWire(model.ExchangeBithumb))
		if err := r.attach(e, s); err != nil {
			return nil, err
		}

	case credential.FamilyMock:
		leg := stream.NewMockLeg(sim.New(r.cfg.Simulator, logger), r.cfg.Session.BufferSize, logger)
		if err := u.AttachLeg(leg); err != nil {
			return nil, err
		}
		u.SetMockMode(true)

	case credential.FamilyKiwoom, credential.FamilyEbestREST:
		return nil, fmt.Errorf("%w: %s has no websocket market data", model.ErrUnsupported, cred.Family)

	default:
		return nil, fmt.Errorf("%w: unknown family %q for credential %s", model.ErrConfiguration, cred.Family, cred.ID)
	}

	e.handle = NewHandle(cred.ID, u, r.metrics, r.logger)
	return e, nil
}

// approvalKeys returns the key source shared by both KIS legs. A configured
// approval key is used as is; otherwise one is issued over REST from the app
// key and secret.
func (r *Registry) approvalKeys(cred credential.Credential, logger *slog.Logger) (*auth.RateLimited, error) {
	interval := r.cfg.Exchanges.KISTokenInterval
	switch {
	case cred.ApprovalKey != "":
		return auth.NewRateLimited(auth.Static(cred.ApprovalKey), interval, 0, logger), nil
	case cred.AppKey != "" && cred.AppSecret != "":
		client := api.NewClient(r.cfg.Exchanges.KISRestURL, api.WithLogger(logger))
		issue := auth.TokenFunc(func(ctx context.Context) (string, error) {
			return client.ApprovalKey(ctx, cred.AppKey, cred.AppSecret)
		})
		return auth.NewRateLimited(issue, interval, KISApprovalTTL, logger), nil
	default:
		return nil, fmt.Errorf("%w: kis credential %s needs an approval key or app key and secret", model.ErrConfiguration, cred.ID)
	}
}

func (r *Registry) session(logger *slog.Logger, name, url string, spacing time.Duration, wire codec.Wire) *connection.Session {
	sc := r.cfg.Session
	s := connection.NewSession(connection.SessionConfig{
		Name:              name,
		Exchange:          wire.Exchange,
		ReconnectDelay:    sc.ReconnectDelay,
		MaxRetries:        sc.MaxRetries,
		Backoff:           sc.Backoff,
		BackoffMax:        sc.BackoffMax,
		HeartbeatInterval: sc.HeartbeatInterval,
		PongTimeout:       sc.PongTimeout,
		MinSpacing:        spacing,
		BufferSize:        sc.BufferSize,
	}, r.newDialer(url), wire, logger)
	s.UseMetrics(r.metrics)
	return s
}

func (r *Registry) attach(e *entry, s *connection.Session) error {
	if err := e.stream.AttachLeg(s); err != nil {
		return err
	}
	e.sessions = append(e.sessions, s)
	return nil
}

func endpoint(cred credential.Credential, fallback string) string {
	if cred.URL != "" {
		return cred.URL
	}
	return fallback
}
