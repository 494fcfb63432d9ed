package config

// Configs is the map of available configurations, by name.
var Configs = map[string]string{
	"default":     defaultConfig,
	"interactive": interactiveConfig,
	"batch":       batchConfig,
	"flaky":       flakyConfig,
}

// defaultConfig supplies the sections a named configuration leaves out
const defaultConfig = `{
	"Source": {
		"Type": "synthetic",
		"Traces": 1,
		"EventsPerTrace": 100000,
		"Step": 1,
		"RetryInterval": "50ms",
		"MaxRetries": 5
	},
	"Dispatcher": {
		"Type": "coalescing",
		"BackgroundDelay": "1s",
		"ContiguityTolerance": 1
	},
	"Scheduler": {
		"Type": "sliced",
		"SliceSize": 100
	}
}`

// interactiveConfig for interactive.  !!! make sure this constant is added to Configs above !!!
const interactiveConfig = `{
	"Dispatcher": {
		"Type": "coalescing",
		"BackgroundDelay": "200ms",
		"ContiguityTolerance": 1
	},
	"Scheduler": {
		"Type": "sliced",
		"SliceSize": 50
	}
}`

// batchConfig for batch.  !!! make sure this constant is added to Configs above !!!
const batchConfig = `{
	"Source": {
		"Type": "synthetic",
		"Traces": 4,
		"EventsPerTrace": 50000,
		"Step": 10,
		"RetryInterval": "50ms",
		"MaxRetries": 5
	},
	"Dispatcher": {
		"Type": "coalescing",
		"DisableBackgroundDelay": true,
		"ContiguityTolerance": 1000
	},
	"Scheduler": {
		"Type": "sliced",
		"SliceSize": 1000
	}
}`

// flakyConfig for flaky, a slow trace whose cursors fail to arm a few times.
// !!! make sure this constant is added to Configs above !!!
const flakyConfig = `{
	"Source": {
		"Type": "synthetic",
		"Traces": 1,
		"EventsPerTrace": 20000,
		"Step": 1,
		"EventsPerSecond": 200000,
		"TransientArmFailures": 2,
		"RetryInterval": "10ms",
		"MaxRetries": 5
	}
}`
