package demo

import (
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI runs the reqdemo command line.
type CLI interface {
	Exec() error
}

type cli struct {
	rootCmd  *cobra.Command
	out      io.Writer
	logLevel string
}

func (c *cli) Exec() error {
	return c.rootCmd.Execute()
}

// NewCLI builds the command tree. Command output goes to out, logs go to logrus.
func NewCLI(out io.Writer) CLI {
	c := &cli{out: out}

	c.rootCmd = &cobra.Command{
		Use:               "reqdemo",
		Short:             "reqdemo runs synthetic request workloads against an in-memory trace",
		SilenceUsage:      true,
		PersistentPreRunE: c.setLogLevel,
	}
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	c.rootCmd.SetOut(out)

	c.addCmd(&runCmd{})
	c.addCmd(&configsCmd{})
	return c
}

func (c *cli) setLogLevel(*cobra.Command, []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

func (c *cli) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(c *cli, cmd *cobra.Command, args []string) error
}
