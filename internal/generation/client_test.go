package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapscribe/internal/config"
	"soapscribe/internal/models"
)

type fakeChatModel struct {
	mu       sync.Mutex
	prompts  []string
	options  []*model.Options
	generate func(ctx context.Context, prompt string) (*schema.Message, error)
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	var prompt string
	if len(input) > 0 {
		prompt = input[0].Content
	}
	f.prompts = append(f.prompts, prompt)
	f.options = append(f.options, model.GetCommonOptions(nil, opts...))
	f.mu.Unlock()
	if f.generate == nil {
		return schema.AssistantMessage("generated", nil), nil
	}
	return f.generate(ctx, prompt)
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestBuildPrompt(t *testing.T) {
	soap, err := BuildPrompt(models.TaskSoapNote, "T")
	require.NoError(t, err)
	assert.Equal(t, "You are a medical assistant. Create a SOAP note for this transcript:\nT", soap)

	summary, err := BuildPrompt(models.TaskSummary, "T")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the following transcript in plain, friendly language:\nT", summary)

	_, err = BuildPrompt("letter", "T")
	require.Error(t, err)
}

func TestGenerateReturnsContentAndSendsSingleUserPrompt(t *testing.T) {
	fake := &fakeChatModel{generate: func(_ context.Context, prompt string) (*schema.Message, error) {
		return schema.AssistantMessage("S: headache", nil), nil
	}}
	client := NewClient(fake, 1000, time.Second, nil)

	got, err := client.Generate(context.Background(), models.TaskSoapNote, "Patient reports mild headache.")
	require.NoError(t, err)
	assert.Equal(t, "S: headache", got)

	require.Len(t, fake.prompts, 1)
	assert.True(t, strings.HasSuffix(fake.prompts[0], "Patient reports mild headache."))
	require.NotNil(t, fake.options[0].MaxTokens)
	assert.Equal(t, 1000, *fake.options[0].MaxTokens)
}

func TestGenerateEmptyContentFallsBack(t *testing.T) {
	for name, resp := range map[string]*schema.Message{
		"empty content": schema.AssistantMessage("", nil),
		"nil message":   nil,
	} {
		fake := &fakeChatModel{generate: func(context.Context, string) (*schema.Message, error) {
			return resp, nil
		}}
		got, err := NewClient(fake, 0, 0, nil).Generate(context.Background(), models.TaskSummary, "x")
		require.NoError(t, err, name)
		assert.Equal(t, NoResponse, got, name)
	}
}

func TestGenerateBackendErrorIsServiceError(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	fake := &fakeChatModel{generate: func(context.Context, string) (*schema.Message, error) {
		return nil, netErr
	}}

	_, err := NewClient(fake, 0, 0, nil).Generate(context.Background(), models.TaskSoapNote, "x")
	require.ErrorIs(t, err, ErrGenerationService)
	require.ErrorIs(t, err, netErr)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, models.TaskSoapNote, svcErr.Task)
}

func TestGenerateAppliesTimeout(t *testing.T) {
	fake := &fakeChatModel{generate: func(ctx context.Context, _ string) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := NewClient(fake, 0, 20*time.Millisecond, nil).Generate(context.Background(), models.TaskSummary, "x")
	require.ErrorIs(t, err, ErrGenerationService)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateCallerCancellationKeepsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeChatModel{generate: func(ctx context.Context, _ string) (*schema.Message, error) {
		cancel()
		<-ctx.Done()
		return nil, errors.New("request aborted")
	}}

	_, err := NewClient(fake, 0, time.Minute, nil).Generate(ctx, models.TaskSoapNote, "x")
	require.ErrorIs(t, err, ErrGenerationService)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateWithoutModel(t *testing.T) {
	_, err := NewClient(nil, 0, 0, nil).Generate(context.Background(), models.TaskSummary, "x")
	require.ErrorIs(t, err, ErrGenerationService)
}

func TestNewChatModelProviders(t *testing.T) {
	ctx := context.Background()

	m, err := NewChatModel(ctx, config.ProviderConfig{Name: "claude", APIKey: "test", MaxTokens: 100})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewChatModel(ctx, config.ProviderConfig{Name: "llama"})
	require.ErrorContains(t, err, "invalid provider")
}

func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClaudeOverloadedIsSentOnce(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})
	chatModel, err := NewChatModel(context.Background(), config.ProviderConfig{
		Name: "claude", BaseURL: srv.URL, APIKey: "test", MaxTokens: 100,
	})
	require.NoError(t, err)

	_, err = NewClient(chatModel, 100, 10*time.Second, nil).Generate(context.Background(), models.TaskSoapNote, "x")
	require.ErrorIs(t, err, ErrGenerationService)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClaudeDroppedConnectionIsSentOnce(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})
	chatModel, err := NewChatModel(context.Background(), config.ProviderConfig{
		Name: "claude", BaseURL: srv.URL, APIKey: "test", MaxTokens: 100,
	})
	require.NoError(t, err)

	_, err = NewClient(chatModel, 100, 10*time.Second, nil).Generate(context.Background(), models.TaskSummary, "x")
	require.ErrorIs(t, err, ErrGenerationService)
	assert.EqualValues(t, 1, hits.Load())
}
