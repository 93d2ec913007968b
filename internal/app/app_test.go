package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/config"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewLedger_LocalBackends(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()
	dir := t.TempDir()

	cases := map[string]func(c *config.Config){
		config.BackendMemory:   func(c *config.Config) {},
		config.BackendWorkbook: func(c *config.Config) { c.Storage.Workbook.Path = filepath.Join(dir, "ledger.xlsx") },
		config.BackendCSV:      func(c *config.Config) { c.Storage.CSV.Directory = filepath.Join(dir, "csv") },
	}
	for backend, tweak := range cases {
		t.Run(backend, func(t *testing.T) {
			c := *cfg
			c.Storage.Backend = backend
			tweak(&c)

			store, err := NewLedger(ctx, &c)
			require.NoError(t, err)
			defer store.Close()

			acct, err := store.CreateAccount(ctx, "Maybank")
			require.NoError(t, err)
			assert.Equal(t, "@Maybank", acct.Title)

			list, err := store.ListAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "Maybank", list[0].DisplayName)
		})
	}
}

func TestNewLedger_Errors(t *testing.T) {
	cfg := loadConfig(t)

	c := *cfg
	c.Storage.Backend = "floppy"
	_, err := NewLedger(context.Background(), &c)
	assert.Error(t, err)

	c = *cfg
	c.Storage.Backend = config.BackendNotion
	_, err = NewLedger(context.Background(), &c)
	assert.Error(t, err)
}

func TestNewService_MissingKey(t *testing.T) {
	cfg := loadConfig(t)

	_, err := NewService(context.Background(), cfg)
	assert.ErrorIs(t, err, apperror.ErrMissingCredential)

	c := *cfg
	c.AI.Provider = config.ProviderAnthropic
	_, err = NewService(context.Background(), &c)
	assert.ErrorIs(t, err, apperror.ErrMissingCredential)
}

func TestNewService_Anthropic(t *testing.T) {
	cfg := loadConfig(t)
	c := *cfg
	c.AI.Provider = config.ProviderAnthropic
	c.AI.AnthropicAPIKey = "sk-test"

	svc, err := NewService(context.Background(), &c)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))

	l := NewLimiter(30)
	require.NotNil(t, l)
	assert.InDelta(t, 0.5, float64(l.Limit()), 1e-9)
	assert.Equal(t, 1, l.Burst())
	assert.True(t, l.AllowN(time.Now(), 1))
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := loadConfig(t)
	c := *cfg
	c.Storage.Backend = config.BackendMemory

	a, err := New(context.Background(), &c, logger.NewWithWriter(&bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Intake)
	assert.NotNil(t, a.Importer)
	assert.Nil(t, a.Archive)

	assert.ErrorIs(t, a.EnableExtraction(context.Background()), apperror.ErrMissingCredential)
	assert.Nil(t, a.Processor)

	c.AI.APIKey = "test-key"
	require.NoError(t, a.EnableExtraction(context.Background()))
	assert.NotNil(t, a.Processor)
}
