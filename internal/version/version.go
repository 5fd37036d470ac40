// Package version carries build metadata stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/market-stream/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/market-stream/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/market-stream/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/marketstream
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
