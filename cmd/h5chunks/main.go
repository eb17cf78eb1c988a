// Command h5chunks lists the objects of an HDF5 file and the chunk table of
// its chunked datasets.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "h5chunks:", err)
		os.Exit(1)
	}
}
