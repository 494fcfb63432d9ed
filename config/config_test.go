package config

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/twitter/tracereq/source"
	"github.com/twitter/tracereq/source/memory"
)

// Tests to ensure every configuration is properly specified
// and that it parses correctly
func TestGettingConfigurations(t *testing.T) {
	for _, name := range Names() {
		configs, err := GetConfigs(name)
		assert.Nil(t, err, fmt.Sprintf("error getting config %s: %v", name, err))
		if err != nil {
			continue
		}
		_, err = configs.Scheduler.CreateSchedulerConfig()
		assert.Nil(t, err, name)
		_, err = configs.Dispatcher.CreateDispatcherConfig()
		assert.Nil(t, err, name)
		_, err = configs.Source.CreateSource()
		assert.Nil(t, err, name)
	}

	selector := "invalid.selector"
	configs, err := GetConfigs(selector)
	assert.NotNil(t, err, fmt.Sprintf("configuration returned for %s: %s", selector, configs))
}

// Sections left out of a named configuration come from the default one.
func TestDefaultSections(t *testing.T) {
	configs, err := GetConfigs("interactive")
	assert.Nil(t, err)
	assert.Equal(t, "synthetic", configs.Source.Type)
	assert.Equal(t, int64(100000), configs.Source.EventsPerTrace)
	assert.Equal(t, 50, configs.Scheduler.SliceSize)

	dc, err := configs.Dispatcher.CreateDispatcherConfig()
	assert.Nil(t, err)
	assert.Equal(t, 200*time.Millisecond, dc.BackgroundDelay)
	assert.False(t, dc.DisableBackgroundDelay)

	configs, err = GetConfigs("batch")
	assert.Nil(t, err)
	dc, err = configs.Dispatcher.CreateDispatcherConfig()
	assert.Nil(t, err)
	assert.True(t, dc.DisableBackgroundDelay)
	assert.Equal(t, int64(1000), dc.ContiguityTolerance)
}

func TestInvalidSections(t *testing.T) {
	_, err := (&DispatcherJSONConfig{Type: "coalescing", BackgroundDelay: "soon"}).CreateDispatcherConfig()
	assert.NotNil(t, err)
	_, err = (&DispatcherJSONConfig{Type: "fifo"}).CreateDispatcherConfig()
	assert.NotNil(t, err)
	_, err = (&SchedulerJSONConfig{Type: "fair"}).CreateSchedulerConfig()
	assert.NotNil(t, err)
	_, err = (&SourceJSONConfig{Type: "synthetic"}).CreateSource()
	assert.NotNil(t, err)
	_, err = (&SourceJSONConfig{Type: "synthetic", EventsPerTrace: 10, MaxRetries: 1, RetryInterval: "x"}).CreateSource()
	assert.NotNil(t, err)
}

func TestCreateSource(t *testing.T) {
	jc := &SourceJSONConfig{Type: "synthetic", Traces: 3, EventsPerTrace: 10, Step: 2}
	src, err := jc.CreateSource()
	assert.Nil(t, err)
	trace, ok := src.(*memory.Trace)
	assert.True(t, ok)
	assert.Equal(t, int64(30), trace.Len())

	// merged traces interleave
	cursor, err := trace.ArmCursor(context.Background(), source.Window{Index: 0, Range: trace.TimeRange()})
	assert.Nil(t, err)
	defer cursor.Close()
	var traces []string
	for i := 0; i < 3; i++ {
		e, err := cursor.Next(context.Background())
		assert.Nil(t, err)
		traces = append(traces, string(e.Trace()))
	}
	assert.Equal(t, []string{"trace-0", "trace-1", "trace-2"}, traces)

	jc.MaxRetries = 2
	src, err = jc.CreateSource()
	assert.Nil(t, err)
	_, ok = src.(*source.Retrying)
	assert.True(t, ok)
}
