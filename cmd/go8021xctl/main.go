// go8021xctl is a CLI client for the go8021x-supplicant daemon.
package main

import "github.com/go8021x/go8021x/cmd/go8021xctl/commands"

func main() {
	commands.Execute()
}
