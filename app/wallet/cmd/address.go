package cmd

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address and public key of the private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := loadKey()
		if err != nil {
			return err
		}

		return printAddress(cmd, key)
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}

func printAddress(cmd *cobra.Command, key *ecdsa.PrivateKey) error {
	publicKey := signature.PublicKeyHex(key.PublicKey)

	address, err := signature.AddressFromPublicKey(publicKey)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "address:   %s\npublicKey: %s\n", address, publicKey)
	return nil
}
