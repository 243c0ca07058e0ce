package config

import (
	"os"
	"sync"
)

var dockerCheck = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// ResolveHostForDocker rewrites localhost to host.docker.internal when the
// engine itself runs inside a container, so direct-SQL adapters can still
// reach databases on the host machine.
func ResolveHostForDocker(host string) string {
	if !dockerCheck() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
