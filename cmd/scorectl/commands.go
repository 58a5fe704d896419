package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/cinecritic/internal/bestof"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/ratings"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

// minSecretLength matches the server's config validation
const minSecretLength = 16

var (
	entityFlag = &cli.StringSliceFlag{
		Name:    "entity",
		Aliases: []string{"e"},
		Usage:   "Title id to score, repeatable (default: every evaluated title)",
	}

	noBreakdownFlag = &cli.BoolFlag{
		Name:  "no-breakdown",
		Usage: "Omit per-category breakdowns",
	}

	subjectFlag = &cli.StringFlag{
		Name:  "subject",
		Usage: "Token subject",
		Value: database.AdminSubject,
	}

	jwtSecretFlag = &cli.StringFlag{
		Name:    "jwt-secret",
		Usage:   "HMAC secret shared with the server",
		EnvVars: []string{"JWT_SECRET"},
	}

	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Usage: "Token lifetime",
		Value: 24 * time.Hour,
	}

	recomputeCmd = &cli.Command{
		Name:   "recompute",
		Usage:  "Rebuild the score cache and best-of rankings",
		Action: recomputeAction,
	}

	scoresCmd = &cli.Command{
		Name:   "scores",
		Usage:  "Compute scores live without touching the cache",
		Action: scoresAction,
		Flags: []cli.Flag{
			entityFlag,
			noBreakdownFlag,
		},
	}

	tokenCmd = &cli.Command{
		Name:   "token",
		Usage:  "Issue an admin token",
		Action: tokenAction,
		Flags: []cli.Flag{
			subjectFlag,
			jwtSecretFlag,
			ttlFlag,
		},
	}

	criteriaCmd = &cli.Command{
		Name:   "criteria",
		Usage:  "List the criteria tree",
		Action: criteriaAction,
	}
)

func cliLogger() *monitoring.Logger {
	return monitoring.NewLoggerWithWriter(os.Stderr, slog.LevelWarn)
}

func recomputeAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	repo := database.NewRepository(db)
	svc := ratings.NewService(repo, ratings.WithLogger(cliLogger()))
	rankings := bestof.NewService(repo, time.Minute)
	defer rankings.Close()
	svc.OnRecompute("bestof", rankings.Refresh)

	start := time.Now()
	result, err := svc.RecomputeAll(c.Context)
	if err != nil {
		return err
	}

	return printResult(c, types.RecomputeResponse{
		Scored:     len(result.Weighted),
		DurationMS: time.Since(start).Milliseconds(),
	})
}

func scoresAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	// nil scores every evaluated title
	var entityIDs []string
	if c.IsSet(entityFlag.Name) {
		entityIDs = c.StringSlice(entityFlag.Name)
	}
	withBreakdown := !c.Bool(noBreakdownFlag.Name)

	svc := ratings.NewService(database.NewRepository(db))
	result, err := svc.Compute(c.Context, entityIDs, withBreakdown)
	if err != nil {
		return err
	}

	return printResult(c, types.ComputeResponse{
		Weighted:  result.Weighted,
		Breakdown: result.Breakdown,
	})
}

func tokenAction(c *cli.Context) error {
	secret := c.String(jwtSecretFlag.Name)
	if secret == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		secret = cfg.Auth.JWTSecret
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes, set --%s or JWT_SECRET", minSecretLength, jwtSecretFlag.Name)
	}

	ttl := c.Duration(ttlFlag.Name)
	auth := database.NewAuthService(secret, "", ttl)
	token, err := auth.GenerateAdminToken(c.String(subjectFlag.Name))
	if err != nil {
		return err
	}

	return printResult(c, types.LoginResponse{
		Token:     token,
		ExpiresIn: int64(ttl.Seconds()),
	})
}

func criteriaAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	criteria, err := database.NewRepository(db).ListCriteria(c.Context)
	if err != nil {
		return err
	}
	return printResult(c, types.BuildCriteriaTree(criteria))
}
