// The main package for the medeasy-scraper executable.
package main

import (
	"github.com/AyonJD/medeasy-scraper/cmd"
)

func main() {
	cmd.Execute()
}
