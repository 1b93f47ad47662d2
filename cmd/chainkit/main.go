// Command chainkit runs task chains from a YAML catalog and records their
// performance against an execution budget.
package main

import (
	"os"

	"github.com/kbukum/chainkit/cli"
)

func main() {
	os.Exit(cli.Execute())
}
