// Command crs synchronises YARA-L detection rule files from a Bitbucket
// repository into the Google Chronicle rule API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
