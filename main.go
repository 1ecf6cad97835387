// Command harvest collects product records from the catalog.
package main

import (
	"github.com/Specoptor/trendyol/cmd"
)

func main() {
	cmd.Execute()
}
