// Package container detects whether the current process is running inside
// a container, used by internal/util to suppress ANSI colour codes on
// hosts where a terminal is never actually attached.
package container

import (
	"os"
	"strings"
)

// IsContainerised reports whether the process is likely running inside a
// Docker or Kubernetes container, checked via /.dockerenv, the init
// cgroup, and the Kubernetes service-host environment variable.
func IsContainerised() bool {
	return hasDockerEnvFile() || isInContainerCGroup() || isInKubernetesPod()
}

// hasDockerEnvFile checks if the /.dockerenv file exists, which _should be_ present in most Docker containers.
func hasDockerEnvFile() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// isInContainerCGroup checks for container-related strings in /proc/1/cgroup (e.g. docker, containerd, kubepods).
func isInContainerCGroup() bool {
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") ||
		strings.Contains(content, "containerd") ||
		strings.Contains(content, "kubepods")
}

// isInKubernetesPod checks for Kubernetes-specific environment variable.
func isInKubernetesPod() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}
