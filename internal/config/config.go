package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server and game configuration loaded from environment variables.
type Config struct {
	Port        string
	DBDriver    string
	DBPath      string
	DatabaseURL string
	MaxRooms    int

	MinBet     int64
	MaxBet     int64
	MinPlayers int
	MaxPlayers int

	CountdownSeconds     int
	QuestionsPerGame     int
	TimePerQuestion      int
	BasePoints           int
	SpeedBonusMultiplier float64
	InitialBalance       int64

	GameStartDelay time.Duration
	ResultsDelay   time.Duration
	RoomRetention  time.Duration
	StoreTimeout   time.Duration

	SettleRetries       int
	SettleRetryInterval time.Duration

	// PrizeTables maps a seated-player count to the payout share of each rank.
	PrizeTables map[int][]float64
}

var ordinals = []string{"FIRST", "SECOND", "THIRD", "FOURTH", "FIFTH"}

var defaultPrizeTables = map[int][]float64{
	2: {0.80, 0.20},
	3: {0.60, 0.30, 0.10},
	4: {0.50, 0.30, 0.20, 0.00},
	5: {0.40, 0.30, 0.20, 0.10, 0.00},
}

// Load reads an optional .env file, then environment variables with sensible defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}

	return Config{
		Port:        envOrDefault("PORT", "8080"),
		DBDriver:    envOrDefault("DB_DRIVER", "sqlite"),
		DBPath:      envOrDefault("DB_PATH", "trivia.db"),
		DatabaseURL: envOrDefault("DATABASE_URL", ""),
		MaxRooms:    envOrDefaultInt("MAX_ROOMS", 100),

		MinBet:     int64(envOrDefaultInt("MIN_BET", 10)),
		MaxBet:     int64(envOrDefaultInt("MAX_BET", 1000)),
		MinPlayers: envOrDefaultInt("MIN_PLAYERS", 2),
		MaxPlayers: envOrDefaultInt("MAX_PLAYERS", 5),

		CountdownSeconds:     envOrDefaultInt("COUNTDOWN_SECONDS", 30),
		QuestionsPerGame:     envOrDefaultInt("QUESTIONS_PER_GAME", 10),
		TimePerQuestion:      envOrDefaultInt("TIME_PER_QUESTION", 15),
		BasePoints:           envOrDefaultInt("BASE_POINTS", 10),
		SpeedBonusMultiplier: envOrDefaultFloat("SPEED_BONUS_MULTIPLIER", 2),
		InitialBalance:       int64(envOrDefaultInt("INITIAL_COINS", 100)),

		GameStartDelay: envOrDefaultDuration("GAME_START_DELAY", 3*time.Second),
		ResultsDelay:   envOrDefaultDuration("RESULTS_DELAY", 5*time.Second),
		RoomRetention:  envOrDefaultDuration("ROOM_RETENTION", 30*time.Second),
		StoreTimeout:   envOrDefaultDuration("STORE_TIMEOUT", 5*time.Second),

		SettleRetries:       envOrDefaultInt("SETTLE_RETRIES", 3),
		SettleRetryInterval: envOrDefaultDuration("SETTLE_RETRY_INTERVAL", 500*time.Millisecond),

		PrizeTables: loadPrizeTables(),
	}
}

// maxSeats is the largest room size a prize table can be configured for.
const maxSeats = 5

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.MinBet <= 0 || c.MinBet > c.MaxBet {
		return fmt.Errorf("bet range [%d, %d] is invalid", c.MinBet, c.MaxBet)
	}
	if c.MinPlayers < 2 || c.MinPlayers > c.MaxPlayers || c.MaxPlayers > maxSeats {
		return fmt.Errorf("player range [%d, %d] is invalid, seats go from 2 to %d", c.MinPlayers, c.MaxPlayers, maxSeats)
	}
	for n := c.MinPlayers; n <= c.MaxPlayers; n++ {
		if len(c.PrizeTables[n]) != n {
			return fmt.Errorf("prize table for %d players must have %d shares", n, n)
		}
	}
	if c.CountdownSeconds <= 0 || c.TimePerQuestion <= 0 || c.QuestionsPerGame <= 0 {
		return errors.New("countdown, question count and question time must be positive")
	}
	if c.BasePoints < 0 || c.SpeedBonusMultiplier < 0 {
		return errors.New("scoring settings must not be negative")
	}
	for n, table := range c.PrizeTables {
		var sum float64
		for _, p := range table {
			if p < 0 {
				return fmt.Errorf("prize table for %d players has a negative share", n)
			}
			sum += p
		}
		// Shares are parsed from decimal strings, allow float noise.
		if sum > 1+1e-9 {
			return fmt.Errorf("prize table for %d players sums to %.4f", n, sum)
		}
	}
	return nil
}

// PrizeTable returns the payout shares for the given seated-player count, or nil.
func (c Config) PrizeTable(players int) []float64 {
	return c.PrizeTables[players]
}

func loadPrizeTables() map[int][]float64 {
	tables := make(map[int][]float64, len(defaultPrizeTables))
	for n, defaults := range defaultPrizeTables {
		table := make([]float64, len(defaults))
		for i, fallback := range defaults {
			key := fmt.Sprintf("PRIZE_%dP_%s", n, ordinals[i])
			table[i] = envOrDefaultFloat(key, fallback)
		}
		tables[n] = table
	}
	return tables
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
