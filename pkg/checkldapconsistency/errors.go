package checkldapconsistency

import "fmt"

// ConfigError marks invalid settings detected before any server is contacted.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError is returned when the bind credentials fail against every server.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}

func authErrorf(format string, args ...interface{}) *AuthError {
	return &AuthError{Reason: fmt.Sprintf(format, args...)}
}

// DiscoveryError is returned when SRV discovery fails and no explicit
// server list was supplied.
type DiscoveryError struct {
	Reason string
}

func (e *DiscoveryError) Error() string {
	return e.Reason
}

func discoveryErrorf(format string, args ...interface{}) *DiscoveryError {
	return &DiscoveryError{Reason: fmt.Sprintf(format, args...)}
}
