// This program provides operator tooling against a running ledger node.
package main

import "github.com/kryptobot/auditchain/app/tooling/admin/commands"

func main() {
	commands.Execute()
}
