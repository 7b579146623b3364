package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read once at startup from the
// environment, with a .env file as a development convenience.
type Config struct {
	ListenAddr    string
	TLSListenAddr string
	TLSCertFile   string
	TLSKeyFile    string
	HTTPAddr      string
	ServerVersion string

	BetCeiling       time.Duration
	TurnCeiling      time.Duration
	DealerPause      time.Duration
	ShuffleThreshold float64
	SweepInterval    time.Duration
}

// Load reads the environment. Backend selection (USERS_MODE,
// GAMES_MODE, HISTORY_MODE) stays with the respective factories; this
// covers the listeners and game pacing.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[Config] loaded .env")
	}
	return Config{
		ListenAddr:    envStr("LISTEN_ADDR", ":4321"),
		TLSListenAddr: envStr("TLS_LISTEN_ADDR", ""),
		TLSCertFile:   envStr("TLS_CERT_FILE", ""),
		TLSKeyFile:    envStr("TLS_KEY_FILE", ""),
		HTTPAddr:      envStr("HTTP_ADDR", ":8080"),
		ServerVersion: envStr("SERVER_VERSION", "blackjack-lite/1.0"),

		BetCeiling:       envDur("BET_CEILING", 60*time.Second),
		TurnCeiling:      envDur("TURN_CEILING", 45*time.Second),
		DealerPause:      envDur("DEALER_PAUSE", 750*time.Millisecond),
		ShuffleThreshold: envFloat("SHUFFLE_THRESHOLD", 0.75),
		SweepInterval:    envDur("SWEEP_INTERVAL", 5*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[Config] bad duration %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[Config] bad float %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
