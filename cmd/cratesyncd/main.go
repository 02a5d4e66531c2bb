// Command cratesyncd runs the cratesync daemon with the default configuration.
// It is equivalent to `cratesync daemon` and exists for service managers.
package main

import (
	"context"
	"log"

	"cratesync/internal/config"
	"cratesync/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("cratesyncd: %v", err)
	}
}
