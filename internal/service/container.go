package service

import (
	"context"
	"time"

	"duel-service/internal/config"
	"duel-service/internal/present"
	"duel-service/internal/rules"
	"duel-service/internal/service/admin"
	"duel-service/internal/service/economy"
	"duel-service/internal/service/game"
	"duel-service/internal/service/game/dropcheck"
	"duel-service/internal/service/game/duel"
	"duel-service/internal/service/game/oldmaid"
	"duel-service/internal/service/game/overflow"
	"duel-service/internal/service/game/showdown"
	"duel-service/internal/service/match"
	"duel-service/internal/service/user"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Economy *economy.Service
	Game    *game.Service
	Hub     *present.Hub
	Match   *match.Service
	User    *user.Service
	Admin   *admin.Service
}

// NewContainer wires every service. rdb may be nil for a single node: wallet
// locks then stay in-process and quick match is disabled.
func NewContainer(db *gorm.DB, rdb *redis.Client, cfg *config.Config) (*Container, error) {
	gameCfg, err := GameConfig(cfg)
	if err != nil {
		return nil, err
	}

	var locker economy.Locker
	if rdb != nil {
		locker = economy.NewRedisLocker(rdb, time.Duration(cfg.Economy.LockTTLSeconds)*time.Second)
	}
	econ := economy.NewService(db, locker, economy.Config{
		MinWager:             cfg.Economy.MinWager,
		WinnerPointsPerMille: cfg.Economy.WinnerPointsPerMille,
		LoserPointsPerMille:  cfg.Economy.LoserPointsPerMille,
	})

	hub := present.NewHub()
	games := game.NewService(db, econ, hub, gameCfg)

	matchCfg := match.DefaultConfig()
	if cfg.Match.IntervalMillis > 0 {
		matchCfg.MatcherInterval = time.Duration(cfg.Match.IntervalMillis) * time.Millisecond
	}
	if cfg.Match.TimeoutSeconds > 0 {
		matchCfg.QueueTimeout = time.Duration(cfg.Match.TimeoutSeconds) * time.Second
		matchCfg.QueueMemberTTL = matchCfg.QueueTimeout
	}
	matchCfg.SplitSubnets = cfg.Match.SplitSubnets

	return &Container{
		Economy: econ,
		Game:    games,
		Hub:     hub,
		Match:   match.NewService(rdb, games, matchCfg),
		User:    user.NewService(db),
		Admin:   admin.NewService(db),
	}, nil
}

// GameConfig maps the config file onto the game manager. Zero values fall
// back to each game's defaults.
func GameConfig(cfg *config.Config) (game.Config, error) {
	outcomes, err := rules.NewOutcomeTable(cfg.Games.Duel.Outcomes)
	if err != nil {
		return game.Config{}, err
	}
	g := cfg.Games
	return game.Config{
		TickPeriod:         time.Duration(cfg.Engine.TickMillis) * time.Millisecond,
		QueueDepth:         cfg.Engine.QueueDepth,
		AcceptTimeoutTicks: cfg.Engine.AcceptTimeoutTicks,
		Duel: duel.Config{
			DamageThreshold:    g.Duel.DamageThreshold,
			ChooseTimeoutTicks: g.Duel.ChooseTimeoutTicks,
			BetTimeoutTicks:    g.Duel.BetTimeoutTicks,
			RoundDelayTicks:    g.Duel.RoundDelayTicks,
			Outcomes:           outcomes,
		},
		DropCheck: dropcheck.Config{
			Slots:                g.DropCheck.Slots,
			MaxStrikes:           g.DropCheck.MaxStrikes,
			MaxRounds:            g.DropCheck.MaxRounds,
			ReviveBaseChance:     g.DropCheck.ReviveBaseChance,
			ReviveStepChance:     g.DropCheck.ReviveStepChance,
			RoundTimeoutTicks:    g.DropCheck.RoundTimeoutTicks,
			ReviveTimeoutTicks:   g.DropCheck.ReviveTimeoutTicks,
			ContinueTimeoutTicks: g.DropCheck.ContinueTimeoutTicks,
		},
		OldMaid: oldmaid.Config{
			TurnTimeoutTicks: g.OldMaid.TurnTimeoutTicks,
		},
		Overflow: overflow.Config{
			Target:           g.Overflow.Target,
			HandSize:         g.Overflow.HandSize,
			RoundsToWin:      g.Overflow.RoundsToWin,
			MaxRounds:        g.Overflow.MaxRounds,
			TurnTimeoutTicks: g.Overflow.TurnTimeoutTicks,
			RoundDelayTicks:  g.Overflow.RoundDelayTicks,
		},
		Showdown: showdown.Config{
			RoundsToWin:      g.Showdown.RoundsToWin,
			MaxRounds:        g.Showdown.MaxRounds,
			DrawTimeoutTicks: g.Showdown.DrawTimeoutTicks,
			RoundDelayTicks:  g.Showdown.RoundDelayTicks,
		},
	}, nil
}

func (c *Container) Start(ctx context.Context) error {
	if err := c.Admin.EnsureDefaultAdmin(ctx); err != nil {
		return err
	}
	return c.Match.Start(ctx)
}

// Shutdown aborts live sessions and waits for them to settle.
func (c *Container) Shutdown(ctx context.Context) error {
	return c.Game.Shutdown(ctx)
}
