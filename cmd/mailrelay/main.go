package main

import (
	"os"

	"github.com/C0nstantin/mailrelay/cmd/mailrelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
