package demo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twitter/tracereq/config"
)

type configsCmd struct{}

func (c *configsCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "Lists the available configurations",
	}
}

func (c *configsCmd) run(cl *cli, cmd *cobra.Command, args []string) error {
	for _, name := range config.Names() {
		configs, err := config.GetConfigs(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cl.out, "%s:%s\n\n", name, configs)
	}
	return nil
}
