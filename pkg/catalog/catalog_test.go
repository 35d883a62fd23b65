package catalog_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const openaiYAML = `
provider: openai
updated: "2026-01-15"
latency_ms: 600
models:
  - model: gpt-4o
    category: large
    quality_tier: 8
    context_window: 128000
    max_output_tokens: 16384
    capabilities: [chat, vision, tools]
    input_per_million: 2.50
    output_per_million: 10.00
    aliases: [gpt-4o-2024-08-06]
  - model: gpt-4o-mini
    category: small
    context_window: 128000
    capabilities: [chat]
    input_per_million: 0.15
    output_per_million: 0.60
  - model: dall-e-3
    category: large
    context_window: 4000
    capabilities: [image_generation]
    fixed_cost: 0.04
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "openai.yaml", openaiYAML)

	pf, err := catalog.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", pf.Provider)
	assert.Equal(t, 600, pf.LatencyMS)
	assert.Len(t, pf.Models, 3)
	assert.Equal(t, "gpt-4o", pf.Models[0].Model)
	assert.Equal(t, 2.50, pf.Models[0].InputPerMillion)
}

func TestLoadFile_FileNotFound(t *testing.T) {
	_, err := catalog.LoadFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "invalid.yaml", "invalid: [yaml")
	_, err := catalog.LoadFile(path)
	assert.Error(t, err)
}

func TestParseFile_MissingProvider(t *testing.T) {
	_, err := catalog.ParseFile([]byte(`
models:
  - model: test
    category: small
    context_window: 1000
    capabilities: [chat]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing provider")
}

func TestParseFile_NoModels(t *testing.T) {
	_, err := catalog.ParseFile([]byte("provider: test\nmodels: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models")
}

func TestBuild_QuarantinesInvalidEntries(t *testing.T) {
	pf, err := catalog.ParseFile([]byte(`
provider: Groq
models:
  - model: llama-3.1-8b-instant
    category: small
    context_window: 131072
    capabilities: [chat]
    free: true
  - model: no-category
    context_window: 1000
    capabilities: [chat]
  - model: negative-price
    category: small
    context_window: 1000
    capabilities: [chat]
    input_per_million: -1
  - model: both-pricing
    category: small
    context_window: 1000
    capabilities: [chat]
    input_per_million: 1
    fixed_cost: 0.1
  - model: bad-capability
    category: small
    context_window: 1000
    capabilities: [telepathy]
  - model: zero-context
    category: small
    context_window: 0
    capabilities: [chat]
`))
	require.NoError(t, err)

	snap := catalog.Build([]*catalog.ProviderFile{pf}, testLogger())
	require.Len(t, snap.Models(), 1)

	m := snap.Models()[0]
	assert.Equal(t, "groq", m.Provider)
	assert.Equal(t, "llama-3.1-8b-instant", m.ID)
	assert.Equal(t, catalog.CategorySmall, m.Category)
	assert.True(t, m.Free)
	assert.True(t, m.Has(catalog.CapChat))
}

func TestBuild_DuplicateModelQuarantined(t *testing.T) {
	pf := &catalog.ProviderFile{
		Provider: "openai",
		Models: []catalog.ModelEntry{
			{Model: "gpt-4o", Category: "large", ContextWindow: 1000, Capabilities: []string{"chat"}, InputPerMillion: 1},
			{Model: "gpt-4o", Category: "large", ContextWindow: 2000, Capabilities: []string{"chat"}, InputPerMillion: 2},
		},
	}

	snap := catalog.Build([]*catalog.ProviderFile{pf}, testLogger())
	require.Len(t, snap.Models(), 1)
	assert.Equal(t, 1000, snap.Models()[0].ContextWindow)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiYAML)
	writeFile(t, dir, "broken.yaml", "invalid: [yaml")
	writeFile(t, dir, "README.md", "# not a catalog")

	snap, err := catalog.LoadDir(dir, testLogger())
	require.NoError(t, err)
	assert.Len(t, snap.Models(), 3)
	assert.Equal(t, []string{"openai"}, snap.Providers())

	img, ok := snap.Lookup("openai", "dall-e-3")
	require.True(t, ok)
	assert.True(t, img.Pricing.IsFixed())
	assert.Equal(t, 600, img.LatencyMS)
}

func TestSnapshot_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiYAML)
	snap, err := catalog.LoadDir(dir, testLogger())
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "exact", id: "gpt-4o", want: "gpt-4o"},
		{name: "alias", id: "gpt-4o-2024-08-06", want: "gpt-4o"},
		{name: "provider prefix", id: "openai/gpt-4o-mini", want: "gpt-4o-mini"},
		{name: "free variant", id: "gpt-4o-mini:free", want: "gpt-4o-mini"},
		{name: "case insensitive", id: "GPT-4o", want: "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := snap.Resolve("openai", tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.ID)
		})
	}

	_, err = snap.Resolve("openai", "gpt-5-turbo-ultra")
	assert.Error(t, err)
	_, err = snap.Resolve("anthropic", "gpt-4o")
	assert.Error(t, err)
}

func TestCatalog_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "openai.yaml", openaiYAML)

	c, err := catalog.Open(dir, testLogger())
	require.NoError(t, err)
	assert.Len(t, c.Snapshot().Models(), 3)

	var results []error
	c.OnReload(func(err error) { results = append(results, err) })

	writeFile(t, dir, "groq.yaml", `
provider: groq
models:
  - model: llama-3.1-8b-instant
    category: small
    context_window: 131072
    capabilities: [chat]
    free: true
`)
	require.NoError(t, c.Reload())
	assert.Len(t, c.Snapshot().Models(), 4)

	// An empty directory keeps the previous snapshot in service.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Remove(filepath.Join(dir, "groq.yaml")))
	assert.Error(t, c.Reload())
	assert.Len(t, c.Snapshot().Models(), 4)

	require.Len(t, results, 2)
	assert.NoError(t, results[0])
	assert.Error(t, results[1])
}

func TestCatalog_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiYAML)

	c, err := catalog.Open(dir, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "groq.yaml", `
provider: groq
models:
  - model: llama-3.1-8b-instant
    category: small
    context_window: 131072
    capabilities: [chat]
`)

	assert.Eventually(t, func() bool {
		_, ok := c.Snapshot().Lookup("groq", "llama-3.1-8b-instant")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNewSnapshot_Duplicate(t *testing.T) {
	m := &catalog.Model{Provider: "openai", ID: "gpt-4o"}
	_, err := catalog.NewSnapshot(m, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestParseCategoryAndCapability(t *testing.T) {
	c, err := catalog.ParseCategory(" Reasoning ")
	require.NoError(t, err)
	assert.Equal(t, catalog.CategoryReasoning, c)

	_, err = catalog.ParseCategory("huge")
	assert.Error(t, err)

	capability, err := catalog.ParseCapability("JSON_MODE")
	require.NoError(t, err)
	assert.Equal(t, catalog.CapJSONMode, capability)

	_, err = catalog.ParseCapability("mind-reading")
	assert.Error(t, err)
}

func TestShippedCatalog(t *testing.T) {
	snap, err := catalog.LoadDir(filepath.Join("..", "..", "catalog"), testLogger())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"anthropic", "deepseek", "groq", "openai", "openrouter"}, snap.Providers())

	m, err := snap.Resolve("openai", "gpt-4o-2024-08-06")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.ID)

	img, ok := snap.Lookup("openai", "dall-e-3")
	require.True(t, ok)
	assert.True(t, img.Pricing.IsFixed())

	free, ok := snap.Lookup("openrouter", "meta-llama/llama-3.3-70b-instruct:free")
	require.True(t, ok)
	assert.True(t, free.Free)
}
