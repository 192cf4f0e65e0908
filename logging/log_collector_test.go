package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCollector(t *testing.T) {
	c := NewLogCollector()
	assert.Nil(t, c.StepLogs("run-1", "01:a"))
	assert.Nil(t, c.RunLogs("run-1"))

	c.AddLog("run-1", "01:a", LogEntry{Time: time.Now(), Level: "INFO", Message: "one"})
	c.AddLog("run-1", "01:a", LogEntry{Time: time.Now(), Level: "INFO", Message: "two"})
	c.AddLog("run-1", "02:b", LogEntry{Time: time.Now(), Level: "WARN", Message: "three"})

	t.Run("StepLogs", func(t *testing.T) {
		logs := c.StepLogs("run-1", "01:a")
		require.Len(t, logs, 2)
		assert.Equal(t, "one", logs[0].Message)

		logs[0].Message = "changed"
		assert.Equal(t, "one", c.StepLogs("run-1", "01:a")[0].Message, "callers get a copy")
	})

	t.Run("RunLogs", func(t *testing.T) {
		run := c.RunLogs("run-1")
		assert.Len(t, run, 2)
		assert.Len(t, run["02:b"], 1)
	})

	t.Run("Forget", func(t *testing.T) {
		c.Forget("run-1")
		assert.Empty(t, c.Runs())
		assert.Nil(t, c.RunLogs("run-1"))
	})
}
