// Package common holds small helpers shared by the tracereq packages and binaries.
package common

import (
	uuid "github.com/nu7hatch/gouuid"
)

// GenUUID returns a random v4 uuid, used to tell dispatcher instances and demo runs apart in logs.
func GenUUID() string {
	// NewV4 only fails if the random source does, retry until it does not.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

// ShortID is the first block of a uuid, enough to correlate log lines.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
