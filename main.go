package main

import (
	"os"

	"github.com/telhawk-systems/pktwatch/cmd"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

func main() {
	if err := cmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}
