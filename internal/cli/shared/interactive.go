package shared

import (
	"os"

	"golang.org/x/term"
)

// IsNonInteractive detects if the current execution context is
// non-interactive, checking in priority order: an explicit environment
// override, common CI environment variables, then whether stdin is a TTY.
func IsNonInteractive() bool {
	if os.Getenv("FLOWCTL_NON_INTERACTIVE") == "true" {
		return true
	}
	if isCIEnvironment() {
		return true
	}
	return !isTerminal()
}

func isCIEnvironment() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_HOME"}
	for _, envVar := range ciVars {
		value := os.Getenv(envVar)
		if value == "true" || value == "1" {
			return true
		}
		if envVar == "JENKINS_HOME" && value != "" {
			return true
		}
	}
	return false
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
