// Package credential resolves a credential identity to the exchange family
// and session settings needed to open a stream.
package credential

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rickgao/market-stream/internal/config"
)

// ErrNotFound is returned when no credential has the requested id.
var ErrNotFound = errors.New("credential not found")

// Families.
const (
	FamilyUpbit     = "upbit"
	FamilyBithumb   = "bithumb"
	FamilyKIS       = "kis"
	FamilyMock      = "mock"
	FamilyKiwoom    = "kiwoom"
	FamilyEbestREST = "ebest_rest"
)

// Credential is a resolved, decrypted credential.
type Credential struct {
	ID          string
	Family      string
	ApprovalKey string // KIS websocket approval key
	AppKey      string // KIS app key; with AppSecret, issues an approval key on demand
	AppSecret   string
	USExchange  string   // KIS overseas key prefix, e.g. DNAS
	URL         string   // Endpoint override
	Symbols     []string // Subscribed at startup
}

// Resolver looks up credentials by id.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Credential, error)
}

// StaticResolver serves credentials from configuration.
type StaticResolver struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewStaticResolver builds a resolver from config entries.
func NewStaticResolver(entries []config.CredentialConfig) *StaticResolver {
	r := &StaticResolver{creds: make(map[string]Credential, len(entries))}
	for _, e := range entries {
		r.Put(Credential{
			ID:          e.ID,
			Family:      e.Family,
			ApprovalKey: e.ApprovalKey,
			AppKey:      e.AppKey,
			AppSecret:   e.AppSecret,
			USExchange:  e.USExchange,
			URL:         e.URL,
			Symbols:     e.Symbols,
		})
	}
	return r
}

// Put adds or replaces a credential.
func (r *StaticResolver) Put(c Credential) {
	c.Family = strings.ToLower(c.Family)
	r.mu.Lock()
	r.creds[c.ID] = c
	r.mu.Unlock()
}

// Resolve returns the credential with the given id.
func (r *StaticResolver) Resolve(_ context.Context, id string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[id]
	if !ok {
		return Credential{}, ErrNotFound
	}
	c.Symbols = slices.Clone(c.Symbols)
	return c, nil
}

// IDs returns every configured credential id, sorted.
func (r *StaticResolver) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.creds))
	for id := range r.creds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Chain tries each resolver in order and returns the first hit.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, id string) (Credential, error) {
	for _, r := range c {
		cred, err := r.Resolve(ctx, id)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credential{}, err
		}
	}
	return Credential{}, ErrNotFound
}
