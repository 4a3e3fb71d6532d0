// Package shared holds global flag state and exit-code plumbing shared
// across flowctl's cobra commands.
package shared

// Global flag values, set by the root command's persistent flags.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	version = "dev"
	commit  = "unknown"
)

// RegisterFlagPointers returns pointers for the root command to bind its
// persistent flags to.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets build-time version information (called from main).
func SetVersion(v, c string) {
	version = v
	commit = c
}

// GetVerbose reports whether -v/--verbose was set.
func GetVerbose() bool { return verboseFlag }

// GetQuiet reports whether -q/--quiet was set.
func GetQuiet() bool { return quietFlag }

// GetJSON reports whether --json was set.
func GetJSON() bool { return jsonFlag }

// GetConfigPath returns the --config flag value, or "" for the XDG default.
func GetConfigPath() string { return configFlag }

// GetVersion returns build-time version information.
func GetVersion() (string, string) { return version, commit }
