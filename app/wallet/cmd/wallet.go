package cmd

import (
	"encoding/json"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet [address|publicKey|username]",
	Short: "Show a wallet, by default the one of the private key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		switch len(args) {
		case 1:
			id = args[0]

		default:
			key, err := loadKey()
			if err != nil {
				return err
			}
			if id, err = signature.AddressFromPublicKey(signature.PublicKeyHex(key.PublicKey)); err != nil {
				return err
			}
		}

		w, err := fetchWallet(id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
}
