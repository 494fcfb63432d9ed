// Package config holds the named JSON configurations of the request
// subsystem and turns them into the dispatcher, scheduler and source
// configurations.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/dispatcher"
	"github.com/twitter/tracereq/event"
	"github.com/twitter/tracereq/scheduler"
	"github.com/twitter/tracereq/source"
	"github.com/twitter/tracereq/source/memory"
)

// JSONConfigs holds the sections of a configuration as written in Configs.
type JSONConfigs struct {
	Source     SourceJSONConfig     `json:"Source"`
	Dispatcher DispatcherJSONConfig `json:"Dispatcher"`
	Scheduler  SchedulerJSONConfig  `json:"Scheduler"`
}

func (c JSONConfigs) String() string {
	return fmt.Sprintf("\n%s\n%s\n%s", c.Source, c.Dispatcher, c.Scheduler)
}

type SourceJSONConfig struct {
	Type                 string  `json:"Type"`                 // synthetic
	Traces               int     `json:"Traces"`               // traces merged into one, default to 1
	EventsPerTrace       int64   `json:"EventsPerTrace"`       // events in each synthetic trace
	Step                 int64   `json:"Step"`                 // timestamp increment between events
	EventsPerSecond      float64 `json:"EventsPerSecond"`      // default to 0, unlimited
	FailAtRank           int64   `json:"FailAtRank"`           // default to 0, never fail
	TransientArmFailures int     `json:"TransientArmFailures"` // default to 0
	RetryInterval        string  `json:"RetryInterval"`        // first retry delay when arming a cursor
	MaxRetries           int     `json:"MaxRetries"`           // default to 0, no retries
}

func (c SourceJSONConfig) String() string {
	return fmt.Sprintf("SourceJSONConfig: Type: %s, Traces: %d, EventsPerTrace: %d, Step: %d, EventsPerSecond: %g, "+
		"FailAtRank: %d, TransientArmFailures: %d, RetryInterval: %s, MaxRetries: %d",
		c.Type, c.Traces, c.EventsPerTrace, c.Step, c.EventsPerSecond,
		c.FailAtRank, c.TransientArmFailures, c.RetryInterval, c.MaxRetries)
}

type DispatcherJSONConfig struct {
	Type                   string `json:"Type"`                   // coalescing
	BackgroundDelay        string `json:"BackgroundDelay"`        // default to 1s
	DisableBackgroundDelay bool   `json:"DisableBackgroundDelay"` // default to false
	ContiguityTolerance    int64  `json:"ContiguityTolerance"`    // default to 1
}

func (c DispatcherJSONConfig) String() string {
	return fmt.Sprintf("DispatcherJSONConfig: Type: %s, BackgroundDelay: %s, DisableBackgroundDelay: %t, ContiguityTolerance: %d",
		c.Type, c.BackgroundDelay, c.DisableBackgroundDelay, c.ContiguityTolerance)
}

type SchedulerJSONConfig struct {
	Type      string `json:"Type"`      // sliced
	SliceSize int    `json:"SliceSize"` // default to 100
	DebugMode bool   `json:"DebugMode"` // default to false
}

func (c SchedulerJSONConfig) String() string {
	return fmt.Sprintf("SchedulerJSONConfig: Type: %s, SliceSize: %d, DebugMode: %t", c.Type, c.SliceSize, c.DebugMode)
}

// Names returns the available configuration names, sorted.
func Names() []string {
	keys := make([]string, 0, len(Configs))
	for k := range Configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func GetConfigText(configSelector string) ([]byte, error) {
	configText, ok := Configs[configSelector]
	if !ok {
		return nil, fmt.Errorf("invalid configuration %s, supported values are %v", configSelector, Names())
	}
	return []byte(configText), nil
}

// GetConfigs parses the named configuration. Sections whose Type is not set
// are taken from the default configuration.
func GetConfigs(configName string) (*JSONConfigs, error) {
	defaultConfigText, _ := GetConfigText("default")
	defaultConfig := &JSONConfigs{}
	if err := json.Unmarshal(defaultConfigText, defaultConfig); err != nil {
		return nil, fmt.Errorf("couldn't parse the default config: %v", err)
	}

	configText, err := GetConfigText(configName)
	if err != nil {
		return nil, err
	}
	configs := &JSONConfigs{}
	if err := json.Unmarshal(configText, configs); err != nil {
		return nil, fmt.Errorf("couldn't parse top-level config %s: %v", configName, err)
	}

	if configs.Source.Type == "" {
		log.Infof("using default Source config")
		configs.Source = defaultConfig.Source
	}
	if configs.Dispatcher.Type == "" {
		log.Infof("using default Dispatcher config")
		configs.Dispatcher = defaultConfig.Dispatcher
	}
	if configs.Scheduler.Type == "" {
		log.Infof("using default Scheduler config")
		configs.Scheduler = defaultConfig.Scheduler
	}
	return configs, nil
}

func (jc *SchedulerJSONConfig) CreateSchedulerConfig() (scheduler.Config, error) {
	if jc.Type != "sliced" {
		return scheduler.Config{}, fmt.Errorf("unknown scheduler type %q", jc.Type)
	}
	return scheduler.Config{
		SliceSize: jc.SliceSize,
		DebugMode: jc.DebugMode,
	}, nil
}

func (jc *DispatcherJSONConfig) CreateDispatcherConfig() (dispatcher.Config, error) {
	if jc.Type != "coalescing" {
		return dispatcher.Config{}, fmt.Errorf("unknown dispatcher type %q", jc.Type)
	}
	config := dispatcher.Config{
		DisableBackgroundDelay: jc.DisableBackgroundDelay,
		ContiguityTolerance:    jc.ContiguityTolerance,
	}
	if jc.BackgroundDelay != "" {
		delay, err := time.ParseDuration(jc.BackgroundDelay)
		if err != nil {
			return dispatcher.Config{}, errors.Wrap(err, "invalid BackgroundDelay")
		}
		config.BackgroundDelay = delay
	}
	return config, nil
}

func (jc *SourceJSONConfig) CreateMemoryConfig() memory.Config {
	return memory.Config{
		EventsPerSecond:      jc.EventsPerSecond,
		FailAtRank:           jc.FailAtRank,
		TransientArmFailures: jc.TransientArmFailures,
	}
}

// CreateSource builds the synthetic traces, merged into one when there are
// several, behind a retrying source when MaxRetries is set.
func (jc *SourceJSONConfig) CreateSource() (source.EventSource, error) {
	if jc.Type != "synthetic" {
		return nil, fmt.Errorf("unknown source type %q", jc.Type)
	}
	if jc.EventsPerTrace <= 0 {
		return nil, fmt.Errorf("EventsPerTrace must be positive, got %d", jc.EventsPerTrace)
	}
	nbTraces := jc.Traces
	if nbTraces <= 0 {
		nbTraces = 1
	}
	step := jc.Step
	if step <= 0 {
		step = 1
	}

	mc := jc.CreateMemoryConfig()
	var src *memory.Trace
	if nbTraces == 1 {
		src = memory.Synthetic("trace-0", jc.EventsPerTrace, 0, event.Timestamp(step), mc)
	} else {
		traces := make([]*memory.Trace, nbTraces)
		for i := range traces {
			// offset the traces so that merging interleaves them
			traces[i] = memory.Synthetic(event.TraceID(fmt.Sprintf("trace-%d", i)),
				jc.EventsPerTrace, event.Timestamp(int64(i)), event.Timestamp(step*int64(nbTraces)), memory.Config{})
		}
		src = memory.Merge("merged", mc, traces...)
	}

	if jc.MaxRetries <= 0 {
		return src, nil
	}
	interval := source.DefaultRetryInterval
	if jc.RetryInterval != "" {
		d, err := time.ParseDuration(jc.RetryInterval)
		if err != nil {
			return nil, errors.Wrap(err, "invalid RetryInterval")
		}
		interval = d
	}
	return source.NewRetrying(src, interval, uint64(jc.MaxRetries)), nil
}
