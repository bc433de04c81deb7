package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		assert.Len(t, handler.GetRecords(), 2)
		assert.True(t, handler.ContainsMessage("test message"))
		assert.True(t, handler.ContainsAttr("key", "value"))
	})

	t.Run("keeps attributes of derived loggers", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With(slog.String("component", "ols")).Warn("derived")

		require.Equal(t, 1, handler.Count())
		assert.True(t, handler.ContainsAttr("component", "ols"))
		AssertLogContains(t, handler, slog.LevelWarn, "derived")
	})

	t.Run("filters by level and clears", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Error("error msg")

		assert.Len(t, handler.GetRecordsByLevel(slog.LevelInfo), 1)
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)

		handler.Clear()
		assert.Zero(t, handler.Count())
		AssertNoErrors(t, handler)
	})

	t.Run("thread safety", func(t *testing.T) {
		logger, handler := NewTestLogger(nil)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.Info("concurrent log", slog.Int("goroutine", i))
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, handler.Count())
	})
}

func TestSyntheticMonthly(t *testing.T) {
	a := SyntheticMonthly(t, 24, 7)
	b := SyntheticMonthly(t, 24, 7)

	assert.Equal(t, 24, a.Len())
	assert.Equal(t, MonthlyColumns, a.Columns())
	assert.Equal(t, a.Digest(), b.Digest(), "same seed gives the same data")
	assert.Greater(t, a.At("price_usd", 0), 0.0)
}
