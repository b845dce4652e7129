package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/meetbot/internal/bot"
	"github.com/meetbot/internal/config"
	"github.com/meetbot/internal/database"
	"github.com/meetbot/internal/karma"
	"github.com/meetbot/internal/server"
	"github.com/meetbot/internal/slack"
	"github.com/meetbot/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "meetbot",
		Usage: "meeting tracker bot for chat workspaces",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"MEETBOT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the bot server",
				Action: runServe,
			},
			{
				Name:  "init-config",
				Usage: "write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Value: "./meetbot.toml",
						Usage: "where to write the sample configuration",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if err := config.InitConfig(path); err != nil {
						return err
					}
					fmt.Printf("Wrote sample configuration to %s\n", path)
					return nil
				},
			},
		},
		// Bare invocation serves, same as `meetbot serve`.
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("meetbot exited with error")
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg.Bot.LogLevel)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	client := slack.NewClient(slack.Config{Token: cfg.Slack.BotToken})
	dispatcher := bot.NewDispatcher(
		store.NewStore(db),
		karma.NewLedger(db),
		client,
		cfg.Bot.LeaderboardLimit,
	)

	srv := server.NewServer(cfg.Server.Port, dispatcher, client, cfg.Slack.SigningSecret)

	log.Info().
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Path).
		Msg("Starting meetbot")

	return srv.Start()
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
