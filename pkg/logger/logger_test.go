package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesContextFieldsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	log := New(Config{Level: "debug", Format: "json", Output: path})

	log.WithComponent("pipeline").WithTopicID(7).WithArticleID(3).WithStage("draft").
		Info().Msg("Draft written")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))

	assert.Equal(t, "pipeline", line["component"])
	assert.Equal(t, float64(7), line["topic_id"])
	assert.Equal(t, float64(3), line["article_id"])
	assert.Equal(t, "draft", line["stage"])
	assert.Equal(t, "Draft written", line["message"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	log := New(Config{Level: "chatty", Output: path})

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestWithSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	New(Config{Output: path}).WithSource("rss", "verge").Warn().Msg("feed slow")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_type":"rss"`)
	assert.Contains(t, string(data), `"source_name":"verge"`)
}
