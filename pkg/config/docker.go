package config

import (
	"os"
	"sync"
)

// dockerHostGateway reaches services published on the Docker host.
const dockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container,
// detected through /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites a loopback SQL Server host to the Docker host
// gateway when running in a container, so a developer database on the host
// machine stays reachable. Any other host is returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveLoopback(host, IsRunningInDocker())
}

func resolveLoopback(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	default:
		return host
	}
}
