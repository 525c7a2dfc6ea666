package main

import (
	"os"

	"github.com/lazypower/memoria/internal/cli"
)

func main() {
	cli.UI = uiFS()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
