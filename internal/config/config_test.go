package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StageSentinel/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "KIS_APP_KEY", "KIS_APP_SECRET",
		"KIS_BASE_URL", "SQLITE_PATH", "DATABASE_DSN", "KAFKA_BROKERS", "HTTP_ADDR", "HTTPS_PROXY"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.Equal(t, defaultKISBaseURL, cfg.KIS.BaseURL)
	assert.Equal(t, 14, cfg.Strategy.RSIPeriod)
	assert.Equal(t, []float64{43, 36, 30}, cfg.Strategy.BuyLevels)
	assert.Equal(t, []string{"10:30", "14:30"}, cfg.Strategy.CheckTimes)
	assert.Equal(t, "Asia/Seoul", cfg.Strategy.Timezone)
	assert.Equal(t, 2, cfg.Strategy.ToleranceMinutes)
	assert.Equal(t, []model.BasketEntry{{Symbol: "069500", Weight: 1}}, cfg.Strategy.Basket)
	assert.Equal(t, 30, cfg.Dedup.WindowMinutes)
	assert.False(t, cfg.Dedup.DailyIdempotency)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: file-token
  chat_id: "1"
strategy:
  main_symbol: "229200"
  buy_levels: [40, 30]
  stage_amounts: [500000, 900000]
  basket:
    - {symbol: "229200", weight: 7}
    - {symbol: "069500", weight: 3}
dedup:
  window_minutes: 60
  daily_idempotency: true
`)
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("KIS_APP_KEY", "k")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("DATABASE_DSN", "postgres://x")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "kis", cfg.DataSource.Provider)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "229200", cfg.Strategy.MainSymbol)
	assert.Len(t, cfg.Strategy.Basket, 2)
	assert.Equal(t, 60, cfg.Dedup.WindowMinutes)
	assert.True(t, cfg.Dedup.DailyIdempotency)
}

func TestLoad_ExplicitZeroTolerance(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, `
strategy:
  tolerance_minutes: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Strategy.ToleranceMinutes)
	require.NoError(t, ValidateSettings(cfg.Strategy))

	cfg, err = Load(writeConfig(t, `
strategy:
  main_symbol: "229200"
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Strategy.ToleranceMinutes)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "telegram required")

	cfg.Telegram.BotToken = "t"
	cfg.Telegram.ChatID = "1"
	require.NoError(t, cfg.Validate())

	cfg.DataSource.Provider = "kis"
	assert.Error(t, cfg.Validate(), "kis needs credentials")
	cfg.DataSource.Provider = "yahoo"

	cfg.Strategy.StageAmounts = []float64{1}
	err = cfg.Validate()
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "stage_amounts", fe.Field)
}

func TestValidateSettings_Fields(t *testing.T) {
	valid := model.Settings{
		MainSymbol: "069500", RSIPeriod: 14, SMAWindow: 20, BuyLevels: []float64{43, 36, 30},
		StageAmounts: []float64{1, 2, 3}, CheckTimes: []string{"10:30"},
		Timezone: "Asia/Seoul", Basket: []model.BasketEntry{{Symbol: "069500", Weight: 1}},
	}
	require.NoError(t, ValidateSettings(valid))

	for field, mutate := range map[string]func(*model.Settings){
		"buy_levels":    func(s *model.Settings) { s.BuyLevels = []float64{30, 36, 43} },
		"stage_amounts": func(s *model.Settings) { s.StageAmounts = []float64{1, 2} },
		"check_times":   func(s *model.Settings) { s.CheckTimes = []string{"25:00"} },
		"basket":        func(s *model.Settings) { s.Basket = []model.BasketEntry{{Symbol: "A", Weight: 0}} },
		"rsi_period":    func(s *model.Settings) { s.RSIPeriod = 0 },
		"timezone":      func(s *model.Settings) { s.Timezone = "Nowhere/City" },
	} {
		s := valid.Clone()
		mutate(&s)
		err := ValidateSettings(s)
		var fe *FieldError
		require.True(t, errors.As(err, &fe), field)
		assert.Equal(t, field, fe.Field)
	}
}
