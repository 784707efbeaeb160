package main

import (
	"os"

	"telchat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
