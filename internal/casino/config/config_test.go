package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CASINO_SERVICE_PORT", "RATE_LIMIT", "SNAPSHOT_BACKEND", "SNAPSHOT_INTERVAL",
		"HISTORY_LIMIT", "BIG_WIN_THRESHOLD", "TELEGRAM_CHAT_ID_1", "TELEGRAM_CHAT_ID_2", "TELEGRAM_CHAT_ID_3"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 100, c.RateLimit)
	assert.Equal(t, BackendFile, c.SnapshotBackend)
	assert.Equal(t, 30*time.Second, c.SnapshotInterval)
	assert.Equal(t, 100, c.HistoryLimit)
	assert.Equal(t, "5000", c.BigWinThreshold.String())
	assert.Empty(t, c.TelegramChatIDs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CASINO_SERVICE_PORT", "9000")
	t.Setenv("RATE_LIMIT", "250")
	t.Setenv("SNAPSHOT_BACKEND", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://casino@localhost/casino")
	t.Setenv("SNAPSHOT_INTERVAL", "5s")
	t.Setenv("RNG_SEED", "42")
	t.Setenv("BIG_WIN_THRESHOLD", "1250.50")
	t.Setenv("TELEGRAM_CHAT_ID_1", "111")
	t.Setenv("TELEGRAM_CHAT_ID_2", "not-a-number")
	t.Setenv("TELEGRAM_CHAT_ID_3", "333")

	c := Load()
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, 250, c.RateLimit)
	assert.Equal(t, BackendPostgres, c.SnapshotBackend)
	assert.Equal(t, 5*time.Second, c.SnapshotInterval)
	assert.Equal(t, int64(42), c.RNGSeed)
	assert.Equal(t, "1250.5", c.BigWinThreshold.String())
	assert.Equal(t, []int64{111, 333}, c.TelegramChatIDs)
}

func TestBackendFallback(t *testing.T) {
	tests := []struct {
		backend, pg, mongo, want string
	}{
		{"postgres", "", "", BackendFile},
		{"mongo", "", "", BackendFile},
		{"mongo", "", "mongodb://localhost", BackendMongo},
		{"none", "", "", BackendNone},
		{"redis", "", "", BackendFile},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			t.Setenv("SNAPSHOT_BACKEND", tc.backend)
			t.Setenv("POSTGRES_URL", tc.pg)
			t.Setenv("MONGODB_URI", tc.mongo)
			assert.Equal(t, tc.want, Load().SnapshotBackend)
		})
	}
}

func TestWarnsWhenBalancesAreNotKept(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	t.Setenv("SNAPSHOT_BACKEND", "none")
	t.Setenv("POSTGRES_URL", "postgres://casino@localhost/casino")
	t.Setenv("JWT_SECRET_KEY", "secret")

	assert.Equal(t, BackendNone, Load().SnapshotBackend)
	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, log.WarnLevel, entry.Level)
		assert.Contains(t, entry.Message, "SNAPSHOT_BACKEND=none")
	}
}
