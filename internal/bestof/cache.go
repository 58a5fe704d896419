package bestof

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/cinecritic/internal/cache"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
)

// RankingCache caches ranking pages and single-title ranks
type RankingCache struct {
	cache *cache.Cache
}

// NewRankingCache creates a ranking cache with the given TTL
func NewRankingCache(ttl time.Duration) *RankingCache {
	return &RankingCache{cache: cache.NewCache(ttl)}
}

func rankingKey(mediaType string, limit int) string {
	return fmt.Sprintf("bestof:%s:%d", mediaType, limit)
}

func rankKey(entityID, mediaType string) string {
	return fmt.Sprintf("rank:%s:%s", entityID, mediaType)
}

// GetRanking retrieves a cached ranking page
func (rc *RankingCache) GetRanking(mediaType string, limit int) (*Response, bool) {
	var response Response
	if !rc.cache.GetJSON(rankingKey(mediaType, limit), &response) {
		return nil, false
	}
	slog.Debug("Best-of cache hit", "media_type", mediaType, "limit", limit)
	return &response, true
}

// SetRanking caches a ranking page
func (rc *RankingCache) SetRanking(mediaType string, limit int, response *Response) {
	if err := rc.cache.SetJSON(rankingKey(mediaType, limit), response); err != nil {
		slog.Error("Failed to cache best-of ranking", "error", err, "media_type", mediaType)
		return
	}
	slog.Debug("Best-of ranking cached", "media_type", mediaType, "limit", limit, "entries", len(response.Entries))
}

// GetRank retrieves a cached single-title rank
func (rc *RankingCache) GetRank(entityID, mediaType string) (*database.BestOfEntry, bool) {
	var entry database.BestOfEntry
	if !rc.cache.GetJSON(rankKey(entityID, mediaType), &entry) {
		return nil, false
	}
	return &entry, true
}

// SetRank caches a single-title rank
func (rc *RankingCache) SetRank(entityID, mediaType string, entry *database.BestOfEntry) {
	if err := rc.cache.SetJSON(rankKey(entityID, mediaType), entry); err != nil {
		slog.Error("Failed to cache rank", "error", err, "entity_id", entityID)
	}
}

// InvalidateAll drops every cached ranking
func (rc *RankingCache) InvalidateAll() {
	rc.cache.Clear()
}

// GetStats returns cache statistics
func (rc *RankingCache) GetStats() map[string]interface{} {
	return rc.cache.Stats()
}

// Close stops the underlying cache janitor
func (rc *RankingCache) Close() {
	rc.cache.Close()
}
