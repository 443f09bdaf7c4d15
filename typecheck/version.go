package typecheck

import "golang.org/x/mod/semver"

// Version information for the typechecker.
const (
	// Version is the current typechecker version.
	Version = "0.5.0"

	// MinClientVersion is the oldest editor-client version whose protocol
	// this server still speaks.
	MinClientVersion = "0.4.0"
)

// Info provides runtime information about the typechecker.
type Info struct {
	// Version is the typechecker version string.
	Version string

	// MinClientVersion is the oldest supported client version.
	MinClientVersion string
}

// GetInfo returns information about the typechecker build.
func GetInfo() Info {
	return Info{
		Version:          Version,
		MinClientVersion: MinClientVersion,
	}
}

// CompatibleWith reports whether an editor client announcing
// clientVersion may talk to this server: a valid semver, same major
// version, and at least MinClientVersion. Accepts versions with or
// without the leading "v".
func CompatibleWith(clientVersion string) bool {
	v := canonical(clientVersion)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Major(v) == semver.Major(canonical(Version)) &&
		semver.Compare(v, canonical(MinClientVersion)) >= 0
}

func canonical(version string) string {
	if version == "" || version[0] == 'v' {
		return version
	}
	return "v" + version
}
