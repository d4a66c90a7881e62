package commands

import (
	"fmt"

	"github.com/mosaicnetworks/herald/src/herald"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/spf13/cobra"
)

// NewKeygenCmd produces a KeygenCmd which creates the keys and identity of a
// new node
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create node keys and identity",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&_config.Herald.DataDir, "datadir", _config.Herald.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().StringVar(&_config.Herald.Passphrase, "passphrase", "", "Seal the key files with this passphrase")
}

func keygen(cmd *cobra.Command, args []string) error {
	conf := &_config.Herald
	conf.SetDataDir(conf.DataDir)

	self, err := herald.Keygen(conf)
	if err != nil {
		return err
	}

	permalink, err := object.Permalink(self)
	if err != nil {
		return err
	}

	fmt.Printf("Your signing key has been saved to: %s\n", conf.Keyfile())
	fmt.Printf("Your update key has been saved to: %s\n", conf.UpdateKeyfile())
	fmt.Printf("Your identity has been saved to: %s\n", conf.IdentityFile())
	fmt.Printf("Permalink: %s\n", permalink)

	return nil
}
