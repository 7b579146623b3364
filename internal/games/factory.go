package games

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("GAMES_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "local":
		return ModeSQLite
	default:
		return raw
	}
}

func sqlitePathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("GAMES_SQLITE_PATH")); v != "" {
		return v
	}
	return "blackjack_games.db"
}

// NewStoreFromEnv selects the metadata backend via GAMES_MODE. Both
// backends serve the default tables when nothing has been provisioned.
func NewStoreFromEnv() (Store, string, error) {
	mode := modeFromEnv()

	switch mode {
	case ModeMemory:
		return NewMemoryStore(DefaultTables()...), mode, nil
	case ModeSQLite:
		store, err := NewSQLiteStore(sqlitePathFromEnv())
		if err != nil {
			return nil, mode, err
		}
		return store, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid GAMES_MODE %q (supported: %s, %s)",
			mode, ModeMemory, ModeSQLite)
	}
}
