package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

const testSecret = "cli-test-secret-0123456789"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{name}, args...))
	return out.String(), err
}

// seed creates one rated movie and returns its id
func seed(t *testing.T, dir string) string {
	t.Helper()
	ctx := context.Background()

	cfg := config.Defaults().Database
	cfg.DataDir = dir
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	repo := database.NewRepository(db)
	story := database.NewCriterion("Story", 60, nil)
	require.NoError(t, repo.CreateCriterion(ctx, story))
	plot := database.NewCriterion("Plot", 1, &story.ID)
	require.NoError(t, repo.CreateCriterion(ctx, plot))

	title := database.NewTitle("Alien", database.MediaTypeMovie, 1979)
	require.NoError(t, repo.CreateTitle(ctx, title))
	_, err = repo.CreateEvaluation(ctx, title.ID, "", []database.ScoreInput{{CriteriaID: plot.ID, Value: 4.5}})
	require.NoError(t, err)

	return title.ID
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--jwt-secret", testSecret, "--subject", "ops")
	require.NoError(t, err)

	var resp types.LoginResponse
	require.NoError(t, encoding.UnmarshalString(out, &resp))
	assert.Equal(t, int64(86400), resp.ExpiresIn)

	auth := database.NewAuthService(testSecret, "", 0)
	subject, err := auth.ValidateAdminToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}

func TestTokenCommand_ShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token", "--jwt-secret", "short")
	assert.ErrorContains(t, err, "at least 16 bytes")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "token", "--jwt-secret", testSecret)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestScoresCommand(t *testing.T) {
	dir := t.TempDir()
	id := seed(t, dir)

	tests := []struct {
		name          string
		args          []string
		wantScore     bool
		wantBreakdown bool
	}{
		{"every evaluated title", []string{"scores"}, true, true},
		{"explicit entity", []string{"scores", "--entity", id}, true, true},
		{"no breakdown", []string{"scores", "--entity", id, "--no-breakdown"}, true, false},
		{"unknown entity", []string{"scores", "--entity", "missing"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--data-dir", dir}, tt.args...)
			out, err := run(t, args...)
			require.NoError(t, err)

			var resp types.ComputeResponse
			require.NoError(t, encoding.UnmarshalString(out, &resp))

			score, ok := resp.Weighted[id]
			assert.Equal(t, tt.wantScore, ok)
			if tt.wantScore {
				assert.Equal(t, 4.5, score)
			}
			if !tt.wantScore {
				return
			}
			require.Contains(t, resp.Breakdown, id)
			if tt.wantBreakdown {
				require.Len(t, resp.Breakdown[id], 1)
				assert.Equal(t, "Story", resp.Breakdown[id][0].Name)
			} else {
				assert.Empty(t, resp.Breakdown[id])
				assert.Contains(t, out, `"breakdown":{`)
			}
		})
	}
}

func TestRecomputeAndCriteria_YAML(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := run(t, "--data-dir", dir, "--format", "yaml", "recompute")
	require.NoError(t, err)
	var recompute map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &recompute))
	assert.Equal(t, 1, recompute["scored"])

	out, err = run(t, "--data-dir", dir, "--format", "yaml", "criteria")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Story")
	assert.Contains(t, out, "name: Plot")
}
