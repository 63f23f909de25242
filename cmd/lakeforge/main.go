package main

import (
	"os"

	"github.com/lakeforge/lakeforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
