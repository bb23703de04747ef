//go:build !no_psi

package main

import (
	"context"

	"pkt.systems/psi"
)

// psi reaps orphaned children and forwards signals when mediad runs as
// PID 1 in a container. Build with -tags no_psi to skip the wrapper.
func main() {
	psi.Run(func(ctx context.Context) int {
		return submain(ctx)
	})
}
