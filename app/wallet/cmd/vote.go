package cmd

import (
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/spf13/cobra"
)

var unvote bool

var voteCmd = &cobra.Command{
	Use:   "vote <username|publicKey>",
	Short: "Vote for a delegate, or take the vote back with --unvote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delegate, err := fetchWallet(args[0])
		if err != nil {
			return err
		}
		if _, ok := delegate.Wallet.Attributes["delegate"]; !ok {
			return fmt.Errorf("%s is not a delegate", args[0])
		}

		sign := "+"
		if unvote {
			sign = "-"
		}

		tx := database.Transaction{
			Type: transactions.TypeVote,
			Asset: &database.Asset{
				Votes: []string{sign + delegate.Wallet.PublicKey},
			},
		}

		return submit(cmd, tx)
	},
}

func init() {
	rootCmd.AddCommand(voteCmd)
	voteCmd.Flags().BoolVar(&unvote, "unvote", false, "Take the vote back.")
	addTxFlags(voteCmd)
}
