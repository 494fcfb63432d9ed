package common

import (
	"time"
)

// How long a binary waits for queued requests to drain once it shuts down.
const DefaultDrainTimeout = 30 * time.Second
