// Package cmd contains the wallet commands.
package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	keyName string
	keyPath string
	url     string
)

const keyExtension = ".ecdsa"

var rootCmd = &cobra.Command{
	Use:           "wallet",
	Short:         "Wallet for the dpos ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command named on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyName, "key", "k", "private", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func privateKeyPath() string {
	name := keyName
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(keyPath, name)
}

func loadKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(privateKeyPath())
	if err != nil {
		return nil, fmt.Errorf("loading key %s: %w", privateKeyPath(), err)
	}
	return key, nil
}
