// Package exitcodes lists the exit codes of the niiview process other than 0
// and the generic 255 set for unhandled errors.
package exitcodes

// ExitCode is a process exit code.
type ExitCode uint8

const (
	// InvalidConfig is a bad flag, environment variable, config file or log
	// output.
	InvalidConfig ExitCode = 104
	// CannotStartServer means the host couldn't listen or stopped serving.
	CannotStartServer ExitCode = 106
	// ResourceUnreadable is a file to open that couldn't be read.
	ResourceUnreadable ExitCode = 110
	// HostUnreachable means no host answered at the configured address.
	HostUnreachable ExitCode = 111
	// GoPanic is a recovered panic.
	GoPanic ExitCode = 255
)
