package commands

import (
	"github.com/spf13/cobra"
)

//RootCmd is the root command for Herald
var RootCmd = &cobra.Command{
	Use:              "herald",
	Short:            "herald identity messaging node",
	TraverseChildren: true,
}
