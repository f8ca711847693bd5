// Package instance names the running worker process for lock ownership and
// log correlation.
package instance

import "os"

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "FABZCLEAN_INSTANCE_ID"

const fallbackID = "worker-0"

// GetID returns the configured instance identifier, the hostname, or a
// default value, in that order.
func GetID() string {
	if id := os.Getenv(EnvInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
