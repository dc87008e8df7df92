package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func restore(t *testing.T) {
	t.Helper()
	prevLogger, prevLevel, prevCtx := log.Logger, zerolog.GlobalLevel(), zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
		zerolog.DefaultContextLogger = prevCtx
	})
}

func TestSetupWriter_JSON(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", "json"))

	log.Debug().Str("pipeline", "api").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "debug", line["level"])
	require.Equal(t, "api", line["pipeline"])
	require.Equal(t, "hello", line["message"])
}

func TestSetupWriter_LevelFilters(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn", "json"))

	log.Info().Msg("dropped")
	require.Zero(t, buf.Len())
	log.Warn().Msg("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestSetupWriter_Console(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "info", "console"))

	log.Info().Msg("console line")
	require.Contains(t, buf.String(), "console line")
	require.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestSetupWriter_ContextFallback(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "info", "json"))

	log.Ctx(context.Background()).Info().Msg("from ctx")
	require.Contains(t, buf.String(), "from ctx")
}

func TestSetupWriter_Invalid(t *testing.T) {
	restore(t)
	require.Error(t, SetupWriter(&bytes.Buffer{}, "loud", "json"))
	require.Error(t, SetupWriter(&bytes.Buffer{}, "info", "xml"))
}
