package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	name    = "scorectl"
	version = "dev"

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the YAML config shared with the server (optional)",
		EnvVars: []string{"CINECRITIC_CONFIG"},
	}

	dataDirFlag = &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "Directory holding the database (overrides the config file)",
		EnvVars: []string{"DATA_DIR"},
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: json or yaml",
		Value: formatJSON,
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:     name,
		Version:  version,
		Compiled: time.Now(),
		Usage:    "Maintenance commands for the review database",
		Writer:   out,
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			formatFlag,
			debugFlag,
		},
		Commands: []*cli.Command{
			recomputeCmd,
			scoresCmd,
			tokenCmd,
			criteriaCmd,
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool(debugFlag.Name) {
				level = slog.LevelDebug
			}
			slog.SetDefault(monitoring.NewLoggerWithWriter(os.Stderr, level).Logger)

			switch c.String(formatFlag.Name) {
			case formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("unsupported format %q, use json or yaml", c.String(formatFlag.Name))
			}
		},
	}
}

// loadConfig reads the shared config. Auth settings are not required here.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if dir := c.String(dataDirFlag.Name); dir != "" {
		cfg.Database.DataDir = dir
	}
	return cfg, nil
}

func openDB(c *cli.Context) (*database.DB, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database in %s: %w", cfg.Database.DataDir, err)
	}
	return db, nil
}

// printResult writes v in the selected format
func printResult(c *cli.Context, v interface{}) error {
	out := c.App.Writer
	data, err := encoding.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	if c.String(formatFlag.Name) != formatYAML {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	// go through JSON so field names follow the json tags
	var generic interface{}
	if err := encoding.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
