package observability

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestRecordLogQueryCountsEmptyResults(t *testing.T) {
	before := testutil.ToFloat64(logQueryEmptyCounter)

	RecordLogQuery(3)
	require.InDelta(t, before, testutil.ToFloat64(logQueryEmptyCounter), 0.0001)

	RecordLogQuery(0)
	require.InDelta(t, before+1, testutil.ToFloat64(logQueryEmptyCounter), 0.0001)
}

func TestRecordersUpdateCollectors(t *testing.T) {
	users := testutil.ToFloat64(usersCreatedCounter)
	exercises := testutil.ToFloat64(exercisesRecordedCounter)

	RecordUserCreated()
	RecordExerciseRecorded(30)
	RecordExercisePersisted(time.Unix(1700000000, 0))

	require.InDelta(t, users+1, testutil.ToFloat64(usersCreatedCounter), 0.0001)
	require.InDelta(t, exercises+1, testutil.ToFloat64(exercisesRecordedCounter), 0.0001)
	require.InDelta(t, 1700000000, testutil.ToFloat64(exercisePersistGauge), 0.0001)
}

func TestConfigureLoggingJSON(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	ConfigureLoggingTo(&buf, "api", "warn", "json")

	log.Info().Msg("hidden")
	log.Warn().Str("user_id", "u1").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "visible", line["message"])
	require.Equal(t, "api", line["service"])
	require.Equal(t, "u1", line["user_id"])
}

func TestConfigureLoggingFallsBackToInfo(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	ConfigureLoggingTo(&buf, "api", "chatty", "console")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}
