// Package config exposes typed accessors for the viper-backed settings.
// Defaults live in cmd/root.go where the config file is loaded.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/navi/internal/daemon"
)

// BackendURL returns the MCP endpoint of the navigation backend.
func BackendURL() string {
	return viper.GetString("backend.url")
}

// CallTimeout bounds navigation queries.
func CallTimeout() time.Duration {
	return viper.GetDuration("backend.call_timeout")
}

// ActivateTimeout bounds project activation, which may index.
func ActivateTimeout() time.Duration {
	return viper.GetDuration("backend.activate_timeout")
}

// DaemonHost returns the daemon's loopback bind host.
func DaemonHost() string {
	return viper.GetString("daemon.host")
}

// DaemonPort returns the daemon's fixed listen port.
func DaemonPort() int {
	return viper.GetInt("daemon.port")
}

// IdleTimeout is how long the daemon may sit without dispatched commands
// before shutting itself down.
func IdleTimeout() time.Duration {
	return viper.GetDuration("daemon.idle_timeout")
}

// StartupTimeout bounds how long a spawned daemon may take to become
// healthy.
func StartupTimeout() time.Duration {
	return viper.GetDuration("daemon.startup_timeout")
}

// ProbeTimeout bounds the daemon health probe.
func ProbeTimeout() time.Duration {
	return viper.GetDuration("daemon.probe_timeout")
}

// TimestampWrites reports whether memory writes get a timestamp marker by
// default.
func TimestampWrites() bool {
	return viper.GetBool("memory.timestamp")
}

// DaemonSettings assembles the full daemon settings for a working
// directory.
func DaemonSettings(workdir string) daemon.Settings {
	return daemon.Settings{
		Workdir:         workdir,
		Host:            DaemonHost(),
		Port:            DaemonPort(),
		BackendURL:      BackendURL(),
		CallTimeout:     CallTimeout(),
		ActivateTimeout: ActivateTimeout(),
		IdleTimeout:     IdleTimeout(),
		StartupTimeout:  StartupTimeout(),
		ProbeTimeout:    ProbeTimeout(),
	}
}
