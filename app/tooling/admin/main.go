// This program performs administrative tasks for a kaldrix node.
package main

import (
	"github.com/ancourn/kaldr1-sub002/app/tooling/admin/commands"
)

func main() {
	commands.Execute()
}
