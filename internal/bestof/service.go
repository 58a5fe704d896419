package bestof

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

const (
	// MediaTypeAll ranks movies and TV together
	MediaTypeAll = "all"

	DefaultLimit = 50
	MaxLimit     = 100
)

// MediaTypes lists every ranking kept by Refresh
var MediaTypes = []string{database.MediaTypeMovie, database.MediaTypeTV, MediaTypeAll}

// Response is one page of a ranking
type Response struct {
	Entries   []database.BestOfEntry `json:"entries"`
	Total     int                    `json:"total"`
	MediaType string                 `json:"media_type"`
}

// Store is the persistence the service needs
type Store interface {
	ListCachedScores(ctx context.Context, mediaType string) ([]database.ScoredTitle, error)
	ReplaceBestOf(ctx context.Context, mediaType string, entries []database.BestOfEntry) error
	ListBestOf(ctx context.Context, mediaType string, limit int) ([]database.BestOfEntry, error)
	CountBestOf(ctx context.Context, mediaType string) (int, error)
	GetBestOfRank(ctx context.Context, mediaType, entityID string) (*database.BestOfEntry, error)
}

// Service maintains best-of rankings built from cached scores
type Service struct {
	store Store
	cache *RankingCache
	now   func() time.Time
}

// NewService creates a best-of service with its own ranking cache
func NewService(store Store, ttl time.Duration) *Service {
	return NewServiceWithCache(store, NewRankingCache(ttl))
}

// NewServiceWithCache creates a best-of service around an existing cache
func NewServiceWithCache(store Store, cache *RankingCache) *Service {
	return &Service{
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

// ValidMediaType reports whether t names a ranking
func ValidMediaType(t string) bool {
	for _, m := range MediaTypes {
		if m == t {
			return true
		}
	}
	return false
}

// NormalizeLimit applies the default and the ceiling
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Refresh rebuilds every ranking from the score cache. Titles without a
// score are never ranked. Equal scores keep name order and get distinct ranks.
func (s *Service) Refresh(ctx context.Context) error {
	now := s.now().UTC()

	for _, mediaType := range MediaTypes {
		filter := mediaType
		if mediaType == MediaTypeAll {
			filter = ""
		}

		scored, err := s.store.ListCachedScores(ctx, filter)
		if err != nil {
			return fmt.Errorf("loading scores for %s: %w", mediaType, err)
		}

		entries := make([]database.BestOfEntry, 0, len(scored))
		for i, st := range scored {
			entries = append(entries, database.BestOfEntry{
				MediaType:  mediaType,
				EntityID:   st.EntityID,
				Name:       st.Name,
				Year:       st.Year,
				Rank:       i + 1,
				Score:      st.Score,
				ComputedAt: now,
			})
		}

		if err := s.store.ReplaceBestOf(ctx, mediaType, entries); err != nil {
			return fmt.Errorf("saving %s ranking: %w", mediaType, err)
		}

		slog.Debug("Best-of ranking refreshed", "media_type", mediaType, "entries", len(entries))
	}

	s.cache.InvalidateAll()
	slog.Info("Best-of rankings refreshed")
	return nil
}

// Get returns the top of a ranking
func (s *Service) Get(ctx context.Context, mediaType string, limit int) (*Response, error) {
	if !ValidMediaType(mediaType) {
		return nil, apperrors.NewValidationError("invalid media type", mediaType)
	}
	limit = NormalizeLimit(limit)

	if cached, found := s.cache.GetRanking(mediaType, limit); found {
		return cached, nil
	}

	entries, err := s.store.ListBestOf(ctx, mediaType, limit)
	if err != nil {
		return nil, fmt.Errorf("loading %s ranking: %w", mediaType, err)
	}

	total, err := s.store.CountBestOf(ctx, mediaType)
	if err != nil {
		return nil, fmt.Errorf("counting %s ranking: %w", mediaType, err)
	}

	response := &Response{
		Entries:   entries,
		Total:     total,
		MediaType: mediaType,
	}
	s.cache.SetRanking(mediaType, limit, response)

	return response, nil
}

// Rank returns one title's ranking entry
func (s *Service) Rank(ctx context.Context, entityID, mediaType string) (*database.BestOfEntry, error) {
	if !ValidMediaType(mediaType) {
		return nil, apperrors.NewValidationError("invalid media type", mediaType)
	}

	if cached, found := s.cache.GetRank(entityID, mediaType); found {
		return cached, nil
	}

	entry, err := s.store.GetBestOfRank(ctx, mediaType, entityID)
	if err != nil {
		return nil, err
	}

	s.cache.SetRank(entityID, mediaType, entry)
	return entry, nil
}

// GetCacheStats returns ranking cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// InvalidateCache drops cached rankings without rebuilding them
func (s *Service) InvalidateCache() {
	s.cache.InvalidateAll()
}

// WarmCache loads the default page of every ranking
func (s *Service) WarmCache(ctx context.Context) {
	for _, mediaType := range MediaTypes {
		if _, err := s.Get(ctx, mediaType, DefaultLimit); err != nil {
			slog.Warn("Failed to warm best-of cache", "media_type", mediaType, "error", err)
		}
	}
	slog.Info("Best-of cache warmed")
}

// Close releases the ranking cache
func (s *Service) Close() {
	s.cache.Close()
}
