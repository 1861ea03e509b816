package main

import (
	"os"

	"github.com/openclaw/clawguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
