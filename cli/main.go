package main

import "brightboard.dev/keyvault/cli/cmd"

func main() {
	cmd.Execute()
}
