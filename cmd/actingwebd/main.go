package main

import (
	"fmt"
	"os"

	"github.com/actingweb/actingweb-go/cmd/actingwebd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
