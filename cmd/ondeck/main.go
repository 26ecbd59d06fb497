// Command ondeck drives the bootstrap of the card protocol contract: the
// trusted setup ceremony, canonical serialization of the parameter bundle,
// deployment to a chain account and the one time parameter binding.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
