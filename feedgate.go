// Package feedgate is the multi-provider orchestration layer for the sports
// analytics dashboard. For every outbound call to an external sports/odds
// data provider it decides whether the call is allowed right now, which
// credential to use, how to recover from failure, and how to avoid duplicate
// or stale work.
//
// The Client façade wires together the per-provider rate limiter, the
// credential pool manager, the error classifier and its recovery policy, and
// the request deduplicator. Callers ask for logical data
// (Fetch(ctx, DataTypeOdds, "nba")) and the client handles provider
// selection, quota enforcement, retries, credential rotation, and fallback.
package feedgate

import (
	"github.com/apexsports/feedgate/internal/dedup"
	"github.com/apexsports/feedgate/internal/keypool"
	"github.com/apexsports/feedgate/internal/provider"
	"github.com/apexsports/feedgate/internal/ratelimit"
)

// Re-exported types so most callers only import the root package.
type (
	// DataType identifies a logical kind of sports data.
	DataType = provider.DataType
	// Payload is a decoded, typed provider response.
	Payload = provider.Payload
	// Game is one scheduled or completed game.
	Game = provider.Game
	// OddsLine is one betting line for a game.
	OddsLine = provider.OddsLine
	// TeamRecord is a team's season record.
	TeamRecord = provider.TeamRecord

	// Decision is the outcome of a rate-limit check.
	Decision = ratelimit.Decision
	// UsageStats is a snapshot of a provider's rate-limit state.
	UsageStats = ratelimit.Stats
	// KeyStats is a masked snapshot of one pool credential.
	KeyStats = keypool.KeyStats
	// RotationEvent is an immutable record of one credential rotation.
	RotationEvent = keypool.RotationEvent
	// CacheStats is a snapshot of deduplicator effectiveness counters.
	CacheStats = dedup.Stats
)

// Data type constants, re-exported for callers.
const (
	DataTypeGames  = provider.DataTypeGames
	DataTypeOdds   = provider.DataTypeOdds
	DataTypeScores = provider.DataTypeScores
	DataTypeTeams  = provider.DataTypeTeams
)
