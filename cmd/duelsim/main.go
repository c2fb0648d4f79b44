// Command duelsim plays sessions between two random bots and renders every
// state change in the terminal. It runs against an in-memory sqlite database
// unless DUELSIM_DSN points elsewhere.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"duel-service/internal/config"
	"duel-service/internal/engine"
	"duel-service/internal/present"
	"duel-service/internal/repo"
	"duel-service/internal/service"
	"duel-service/internal/service/economy"
	"duel-service/internal/service/game"
	"duel-service/internal/service/user"
	"duel-service/pkg/logger"
	"duel-service/pkg/utils/random"

	"github.com/caarlos0/env/v11"
	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

type simConfig struct {
	Game       string        `env:"DUELSIM_GAME" envDefault:"duel"`
	Wager      string        `env:"DUELSIM_WAGER" envDefault:"100"`
	Balance    int64         `env:"DUELSIM_BALANCE" envDefault:"1000"`
	Rounds     int           `env:"DUELSIM_ROUNDS" envDefault:"1"`
	Seed       int64         `env:"DUELSIM_SEED"`
	TickMillis int           `env:"DUELSIM_TICK_MILLIS" envDefault:"50"`
	BotDelay   time.Duration `env:"DUELSIM_BOT_DELAY" envDefault:"20ms"`
	DSN        string        `env:"DUELSIM_DSN" envDefault:"file:duelsim?mode=memory&cache=shared"`
	Config     string        `env:"DUELSIM_CONFIG"`
	Verbose    bool          `env:"DUELSIM_VERBOSE"`
}

// botVerbs are the moves a bot tries for each game. Forfeit and decline are
// left out so sessions play to a natural end.
var botVerbs = map[string][]engine.ActionKind{
	game.KindDuel:      {engine.ActionPick, engine.ActionConfirm, engine.ActionRaise},
	game.KindDropCheck: {engine.ActionDrop, engine.ActionCheck, engine.ActionRevive, engine.ActionContinue},
	game.KindOldMaid:   {engine.ActionSelect},
	game.KindOverflow:  {engine.ActionPlay},
	game.KindShowdown:  {engine.ActionSelect, engine.ActionConfirm},
}

func main() {
	var sc simConfig
	if err := env.Parse(&sc); err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	if sc.Seed == 0 {
		sc.Seed = random.Seed()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, sc); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, sc simConfig) error {
	verbs, ok := botVerbs[sc.Game]
	if !ok {
		return fmt.Errorf("unknown game %q", sc.Game)
	}

	cfg, err := config.Load(sc.Config)
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "duelsim"
	}
	cfg.Engine.TickMillis = sc.TickMillis
	config.GlobalConfig = cfg
	if sc.Verbose {
		logger.InitLogger("debug")
	}

	db, err := repo.Open(config.DatabaseConfig{Driver: "sqlite", DSN: sc.DSN})
	if err != nil {
		return err
	}

	gameCfg, err := service.GameConfig(cfg)
	if err != nil {
		return err
	}
	seeds := rand.New(rand.NewSource(sc.Seed))
	gameCfg.NewSeed = seeds.Int63

	econ := economy.NewService(db, nil, economy.Config{
		MinWager:             cfg.Economy.MinWager,
		WinnerPointsPerMille: cfg.Economy.WinnerPointsPerMille,
		LoserPointsPerMille:  cfg.Economy.LoserPointsPerMille,
	})
	games := game.NewService(db, econ, present.NewTerminal(os.Stdout), gameCfg)
	users := user.NewService(db)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		games.Shutdown(shutdownCtx)
	}()

	var players [2]engine.Player
	for i, name := range []string{"bot-a", "bot-b"} {
		login, err := users.Login(ctx, name)
		if err != nil {
			return err
		}
		if players[i], err = users.Player(ctx, login.User.ID); err != nil {
			return err
		}
		balance := sc.Balance
		if _, err := econ.AdminSetWallet(ctx, players[i].ID, economy.AdminSetWalletRequest{BalanceAvailable: &balance}); err != nil {
			return err
		}
	}

	pterm.DefaultSection.Printfln("%s x%d, seed %d", sc.Game, sc.Rounds, sc.Seed)
	for round := 1; round <= sc.Rounds; round++ {
		out, err := playOne(ctx, games, sc, verbs, players, seeds.Int63())
		if err != nil {
			return err
		}
		if out.Winner.ID != 0 {
			pterm.Success.Printfln("session %d: %s (%s) won %d by %s", round, out.Winner.Name, out.Kind, out.Amount, out.Reason)
		} else {
			pterm.Info.Printfln("session %d: %s by %s", round, out.Kind, out.Reason)
		}
	}

	for _, p := range players {
		w, err := econ.GetWallet(ctx, p.ID)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("%s balance %d points %d", p.Name, w.BalanceAvailable, w.Points)
	}
	return nil
}

func playOne(ctx context.Context, games *game.Service, sc simConfig, verbs []engine.ActionKind, players [2]engine.Player, seed int64) (engine.Outcome, error) {
	coord, err := games.Start(ctx, game.StartRequest{
		Kind:       sc.Game,
		Challenger: players[0],
		Opponent:   players[1],
		Amount:     sc.Wager,
	})
	if err != nil {
		return engine.Outcome{}, err
	}
	if err := games.Submit(ctx, engine.Action{SessionID: coord.ID(), ActorID: players[1].ID, ActorName: players[1].Name, Kind: engine.ActionAccept}); err != nil {
		return engine.Outcome{}, err
	}

	botCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for i, p := range players {
		go bot(botCtx, games, coord, verbs, p, rand.New(rand.NewSource(seed+int64(i))), sc.BotDelay)
	}

	select {
	case <-coord.Done():
		return coord.Outcome(), nil
	case <-ctx.Done():
		return engine.Outcome{}, ctx.Err()
	}
}

// bot submits random moves until the session ends. Most are rejected by the
// game; the accepted ones drive it forward.
func bot(ctx context.Context, games *game.Service, coord *engine.Coordinator, verbs []engine.ActionKind, p engine.Player, rng *rand.Rand, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-coord.Done():
			return
		case <-ticker.C:
		}
		a := engine.Action{
			SessionID: coord.ID(),
			ActorID:   p.ID,
			ActorName: p.Name,
			Kind:      verbs[rng.Intn(len(verbs))],
			Index:     rng.Intn(8),
		}
		if err := games.Submit(ctx, a); err != nil {
			logger.Log.Debug("bot move rejected",
				zap.String("bot", p.Name),
				zap.String("action", a.Kind.String()),
				zap.Error(err),
			)
		}
	}
}
