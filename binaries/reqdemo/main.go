package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/common/errors"
	"github.com/twitter/tracereq/common/log/hooks"
	"github.com/twitter/tracereq/demo"
)

// CLI binary exercising the request subsystem against in-memory traces
//	Supported commands: (see "-h" for all options)
//		run [--config name] [--foreground n] [--background n] ...
//		configs
//	Global flags:
// 		--log_level [<error|info|debug> level and above should be logged]

func main() {
	log.AddHook(hooks.NewContextHook())

	if err := demo.NewCLI(os.Stdout).Exec(); err != nil {
		log.Error(err)
		os.Exit(int(errors.ExitCodeOf(err)))
	}
}
