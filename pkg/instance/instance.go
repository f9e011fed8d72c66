package instance

import (
	"fmt"
	"os"

	"github.com/angelmondragon/reelforge-backend/pkg/env"
)

// GetID returns the worker instance identifier used as the workflow lease owner.
// REELFORGE_WORKER_ID wins; otherwise hostname and pid keep replicas distinct.
func GetID() string {
	if id := env.Get("REELFORGE_WORKER_ID", ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
