package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapscribe/internal/app"
)

type cannedModel struct{}

func (cannedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if strings.HasPrefix(input[0].Content, "Summarize") {
		return schema.AssistantMessage("You have a mild headache.", nil), nil
	}
	return schema.AssistantMessage("S: mild headache", nil), nil
}

func (cannedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	body := `{"basic_config": {"upload_dir": "uploads", "log_level": "error"}, "database": {"driver": "none"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(app.Options{ChatModel: cannedModel{}})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestGenerateCommandKeepsSourceFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("Patient reports mild headache."), 0o600))

	stdout, _, err := runCLI(t, "--config", cfgPath, "generate", "--quiet", src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "S: mild headache")
	assert.Contains(t, stdout, "You have a mild headache.")

	_, err = os.Stat(src)
	assert.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateCommandUnsupported(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	src := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o600))

	_, stderr, err := runCLI(t, "--config", cfgPath, "generate", "-q", src)
	require.Error(t, err)
	assert.Contains(t, stderr, "unsupported_file_kind")
}
