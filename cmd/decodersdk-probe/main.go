// Command decodersdk-probe is a command-line harness for exercising a
// decodersdk Controller session without a GUI: open a source, watch its
// events, optionally record, and periodically report session state.
package main

import (
	"log"
	"os"

	"github.com/yaxinqq/decodersdk/cmd/decodersdk-probe/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := cmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
