package main

import "github.com/rl1809/easy-inventory/cmd/inventoryctl/commands"

func main() {
	commands.Execute()
}
