package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOldestIdleFirstOrdersByLastDownloadTime(t *testing.T) {
	now := time.Now()
	runtimes := map[string]*channelRuntime{
		"a": {lastDownloadTime: now.Add(-1 * time.Minute)},
		"b": {lastDownloadTime: now.Add(-10 * time.Minute)},
		"c": {lastDownloadTime: now},
	}

	order := oldestIdleFirst(runtimes)
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestOldestIdleFirstTreatsZeroValueAsOldest(t *testing.T) {
	now := time.Now()
	runtimes := map[string]*channelRuntime{
		"seen":  {lastDownloadTime: now},
		"never": {},
	}

	order := oldestIdleFirst(runtimes)
	assert.Equal(t, []string{"never", "seen"}, order)
}
