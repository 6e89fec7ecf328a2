package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/eachlabs/chorus/cmd/chorus/commands"
)

var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
