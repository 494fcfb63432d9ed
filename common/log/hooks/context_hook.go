// Package hooks holds logrus hooks shared by the tracereq binaries and tests.
package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// The entry field holding the caller's location.
const FileLineField = "file:line"

type contextHook struct {
	// path prefix stripped from reported file names.
	trimPrefix string
}

// NewContextHook returns a hook that records the file:line of the logging call site.
func NewContextHook() contextHook {
	return contextHook{trimPrefix: "tracereq/"}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire walks the stack past logrus' own frames. The first frame that is not
// in logrus is the call site.
func (hook contextHook) Fire(entry *logrus.Entry) error {
	lines := strings.Split(string(debug.Stack()), "\n")
	foundHook := false
	for i := 0; i+1 < len(lines); i++ {
		fn := lines[i]
		if !foundHook {
			if strings.Contains(fn, "hooks.contextHook.Fire") {
				foundHook = true
			}
			continue
		}
		if strings.Contains(fn, "sirupsen/logrus") || !strings.HasPrefix(lines[i+1], "\t") {
			continue
		}
		loc := strings.Split(strings.TrimSpace(lines[i+1]), hook.trimPrefix)
		loc = strings.Fields(loc[len(loc)-1])
		if len(loc) > 0 {
			entry.Data[FileLineField] = loc[0]
		}
		return nil
	}
	return nil
}
