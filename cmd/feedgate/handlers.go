package main

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/apexsports/feedgate"
	"github.com/apexsports/feedgate/internal/observability"
)

// providerStats is the per-provider block of the /v1/stats response.
type providerStats struct {
	RateLimit feedgate.UsageStats `json:"rate_limit"`
	Keys      []feedgate.KeyStats `json:"keys"`
	Decision  feedgate.Decision   `json:"decision"`
}

func handleStats(client *feedgate.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]providerStats)
		for _, name := range client.Providers() {
			stats := providerStats{
				Keys:     client.KeyUsage(name),
				Decision: client.CheckRateLimit(name),
			}
			if usage, ok := client.ProviderStats(name); ok {
				stats.RateLimit = usage
			}
			out[name] = stats
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleRotations(client *feedgate.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"rotations": client.RotationHistory(100),
		})
	}
}

func handleCache(client *feedgate.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.CacheStatsSnapshot())
	}
}

func handleData(client *feedgate.Client, logger *slog.Logger) http.HandlerFunc {
	valid := map[string]feedgate.DataType{
		string(feedgate.DataTypeGames):  feedgate.DataTypeGames,
		string(feedgate.DataTypeOdds):   feedgate.DataTypeOdds,
		string(feedgate.DataTypeScores): feedgate.DataTypeScores,
		string(feedgate.DataTypeTeams):  feedgate.DataTypeTeams,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		dataType, ok := valid[r.PathValue("dataType")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown data type " + r.PathValue("dataType"),
			})
			return
		}
		sport := r.PathValue("sport")

		payload, err := client.Fetch(r.Context(), dataType, sport)
		if err != nil {
			logger.Warn("fetch failed",
				"request_id", observability.RequestIDFromContext(r.Context()),
				"data_type", dataType,
				"sport", sport,
				"error", err,
			)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
