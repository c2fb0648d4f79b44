package config

import (
	"log"
	"strings"

	"duel-service/internal/rules"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	Engine   EngineConfig    `mapstructure:"engine"`
	Economy  EconomyConfig   `mapstructure:"economy"`
	Match    MatchConfig     `mapstructure:"match"`
	Games    GamesConfig     `mapstructure:"games"`
	Admin    AdminSeedConfig `mapstructure:"admin"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
	// ShutdownSeconds bounds how long running sessions get to settle on exit.
	ShutdownSeconds int `mapstructure:"shutdownSeconds"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type EngineConfig struct {
	TickMillis         int `mapstructure:"tickMillis"`
	QueueDepth         int `mapstructure:"queueDepth"`
	AcceptTimeoutTicks int `mapstructure:"acceptTimeoutTicks"`
}

type EconomyConfig struct {
	MinWager             int64 `mapstructure:"minWager"`
	WinnerPointsPerMille int64 `mapstructure:"winnerPointsPerMille"`
	LoserPointsPerMille  int64 `mapstructure:"loserPointsPerMille"`
	LockTTLSeconds       int   `mapstructure:"lockTTLSeconds"`
}

type MatchConfig struct {
	IntervalMillis int  `mapstructure:"intervalMillis"`
	TimeoutSeconds int  `mapstructure:"timeoutSeconds"`
	SplitSubnets   bool `mapstructure:"splitSubnets"`
}

type GamesConfig struct {
	Duel      DuelConfig      `mapstructure:"duel"`
	DropCheck DropCheckConfig `mapstructure:"dropcheck"`
	OldMaid   OldMaidConfig   `mapstructure:"oldmaid"`
	Overflow  OverflowConfig  `mapstructure:"overflow"`
	Showdown  ShowdownConfig  `mapstructure:"showdown"`
}

type DuelConfig struct {
	DamageThreshold    int              `mapstructure:"damageThreshold"`
	ChooseTimeoutTicks int              `mapstructure:"chooseTimeoutTicks"`
	BetTimeoutTicks    int              `mapstructure:"betTimeoutTicks"`
	RoundDelayTicks    int              `mapstructure:"roundDelayTicks"`
	Outcomes           []rules.Override `mapstructure:"outcomes"`
}

type DropCheckConfig struct {
	Slots                int `mapstructure:"slots"`
	MaxStrikes           int `mapstructure:"maxStrikes"`
	MaxRounds            int `mapstructure:"maxRounds"`
	ReviveBaseChance     int `mapstructure:"reviveBaseChance"`
	ReviveStepChance     int `mapstructure:"reviveStepChance"`
	RoundTimeoutTicks    int `mapstructure:"roundTimeoutTicks"`
	ReviveTimeoutTicks   int `mapstructure:"reviveTimeoutTicks"`
	ContinueTimeoutTicks int `mapstructure:"continueTimeoutTicks"`
}

type OldMaidConfig struct {
	TurnTimeoutTicks int `mapstructure:"turnTimeoutTicks"`
}

type OverflowConfig struct {
	Target           int `mapstructure:"target"`
	HandSize         int `mapstructure:"handSize"`
	RoundsToWin      int `mapstructure:"roundsToWin"`
	MaxRounds        int `mapstructure:"maxRounds"`
	TurnTimeoutTicks int `mapstructure:"turnTimeoutTicks"`
	RoundDelayTicks  int `mapstructure:"roundDelayTicks"`
}

type ShowdownConfig struct {
	RoundsToWin      int `mapstructure:"roundsToWin"`
	MaxRounds        int `mapstructure:"maxRounds"`
	DrawTimeoutTicks int `mapstructure:"drawTimeoutTicks"`
	RoundDelayTicks  int `mapstructure:"roundDelayTicks"`
}

type AdminSeedConfig struct {
	DefaultUsername string `mapstructure:"defaultUsername"`
	DefaultPassword string `mapstructure:"defaultPassword"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdownSeconds", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.expire", 72)

	v.SetDefault("engine.tickMillis", 1000)
	v.SetDefault("engine.queueDepth", 64)
	v.SetDefault("engine.acceptTimeoutTicks", 60)

	v.SetDefault("economy.minWager", 10)
	v.SetDefault("economy.winnerPointsPerMille", 20)
	v.SetDefault("economy.loserPointsPerMille", 5)
	v.SetDefault("economy.lockTTLSeconds", 5)

	v.SetDefault("match.intervalMillis", 500)
	v.SetDefault("match.timeoutSeconds", 180)
	v.SetDefault("match.splitSubnets", true)
}

// Load reads a YAML file on top of the built-in defaults. Any key can be
// overridden from the environment as DUEL_SECTION_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("duel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Error loading config file, %s", err)
	}
	GlobalConfig = cfg
}
