package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(privateKeyPath()); err == nil {
			return fmt.Errorf("key %s already exists", privateKeyPath())
		}

		if err := os.MkdirAll(keyPath, 0755); err != nil {
			return err
		}

		key, err := signature.GenerateKey()
		if err != nil {
			return err
		}

		if err := crypto.SaveECDSA(privateKeyPath(), key); err != nil {
			return err
		}

		return printAddress(cmd, key)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
