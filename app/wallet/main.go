// This program is a wallet for holding keys and submitting transactions
// to a kaldrix node.
package main

import (
	"github.com/ancourn/kaldr1-sub002/app/wallet/cmd"
)

func main() {
	cmd.Execute()
}
