// Package config loads the Wren profile: which serial ports the hardware
// hangs off, the servo calibration table, and where the cross-process lease
// state lives.
package config

import "os"

// Environment names.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Env returns the runtime environment from WREN_ENV.
// Falls back to development if not set.
func Env() string {
	if env := os.Getenv("WREN_ENV"); env != "" {
		return env
	}
	return EnvDevelopment
}

// Production reports whether Wren runs on the robot itself.
func Production() bool {
	return Env() == EnvProduction
}

// Token returns the remote-command auth token from WREN_TOKEN.
// Falls back to the provided profile value if not set.
func Token(profileToken string) string {
	if tok := os.Getenv("WREN_TOKEN"); tok != "" {
		return tok
	}
	return profileToken
}

// ServerAddr returns the remote server bind address from WREN_ADDR.
// Falls back to the provided profile value if not set.
func ServerAddr(profileAddr string) string {
	if addr := os.Getenv("WREN_ADDR"); addr != "" {
		return addr
	}
	return profileAddr
}
