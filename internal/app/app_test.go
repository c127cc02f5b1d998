package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapscribe/internal/config"
	"soapscribe/internal/events"
	"soapscribe/internal/redis"
)

type echoModel struct{}

func (echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("echo: "+input[0].Content, nil), nil
}

func (echoModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BasicConfig: config.BasicConfig{
			UploadDir:                t.TempDir(),
			MaxUploadBytes:           1 << 20,
			TempFileTTL:              60,
			TempCleanInterval:        10,
			GenerationTimeoutSeconds: 5,
		},
		Provider: config.ProviderConfig{Name: "claude", Model: config.DefaultModel, MaxTokens: config.DefaultMaxTokens},
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"},
	}
}

func TestNewStartsOnDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	a, err := New(context.Background(), cfg, nil, Options{ChatModel: echoModel{}})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Ledger)
	_, err = os.Stat(filepath.Join(dir, "data", "soapscribe.db"))
	assert.NoError(t, err)

	f, err := a.Uploads.SaveReader(context.Background(), "notes.txt", strings.NewReader("Patient reports mild headache."))
	require.NoError(t, err)
	res, err := a.Orchestrator.Run(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.SoapNote, "echo: "))
}

func TestNewWiresLedgerAndEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: port}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, cfg, nil, Options{ChatModel: echoModel{}})
	require.NoError(t, err)
	defer a.Close()
	a.StartBackground(ctx)

	sub, err := redis.NewRedisClient(cfg.Redis)
	require.NoError(t, err)
	defer sub.Close()
	received := make(chan events.RunEvent, 1)
	require.NoError(t, events.Subscribe(ctx, sub, nil, func(evt events.RunEvent) { received <- evt }))

	f, err := a.Uploads.SaveReader(ctx, "notes.txt", strings.NewReader("Patient reports mild headache."))
	require.NoError(t, err)
	res, err := a.Orchestrator.Run(ctx, f)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.SoapNote, "Patient reports mild headache."))
	assert.True(t, strings.HasPrefix(res.PatientSummary, "echo: Summarize"))

	runs, err := a.Ledger.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	select {
	case evt := <-received:
		assert.Equal(t, runs[0].ID, evt.RunID)
	case <-time.After(2 * time.Second):
		t.Fatal("run event not published")
	}
}

func TestNewWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "none"

	a, err := New(context.Background(), cfg, nil, Options{ChatModel: echoModel{}})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Ledger)
	assert.NotNil(t, a.Orchestrator)
}

func TestNewBuildsProviderModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "none"
	cfg.Provider.APIKey = "test-key"

	a, err := New(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
