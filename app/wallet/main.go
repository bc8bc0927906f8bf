// This program is a command line wallet for the ledger.
package main

import "github.com/ardanlabs/dposledger/app/wallet/cmd"

func main() {
	cmd.Execute()
}
