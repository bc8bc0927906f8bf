package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var (
	to          string
	amount      uint64
	fee         uint64
	nonce       uint64
	vendorField string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transfer to an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if to == "" {
			return fmt.Errorf("the recipient address is required")
		}

		tx := database.Transaction{
			Type:        transactions.TypeTransfer,
			Amount:      new(big.Int).SetUint64(amount),
			RecipientID: to,
			VendorField: vendorField,
		}

		return submit(cmd, tx)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address of the recipient.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "a", 0, "Amount to send.")
	sendCmd.Flags().StringVarP(&vendorField, "vendor-field", "v", "", "Free text sent with the transfer.")
	addTxFlags(sendCmd)
}

func addTxFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64VarP(&fee, "fee", "f", 10_000_000, "Fee paid to the forger.")
	cmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce of the transaction, zero asks the node for the next one.")
}

// submit fills in the sender fields, signs the transaction and hands it to
// the node.
func submit(cmd *cobra.Command, tx database.Transaction) error {
	key, err := loadKey()
	if err != nil {
		return err
	}

	if err := prepare(&tx, key); err != nil {
		return err
	}

	signed, err := tx.Sign(key)
	if err != nil {
		return err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := do(http.MethodPost, "/v1/mempool", signed, &resp); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.ID, resp.Status)
	return nil
}

func prepare(tx *database.Transaction, key *ecdsa.PrivateKey) error {
	tx.Version = 2
	tx.TypeGroup = database.TypeGroupCore
	tx.SenderPublicKey = signature.PublicKeyHex(key.PublicKey)
	tx.Fee = new(big.Int).SetUint64(fee)
	tx.Timestamp = time.Now().Unix()
	if tx.Amount == nil {
		tx.Amount = new(big.Int)
	}

	if nonce != 0 {
		tx.Nonce = uint256.NewInt(nonce)
		return nil
	}

	address, err := signature.AddressFromPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	tx.Nonce, err = nextNonce(address)
	return err
}
