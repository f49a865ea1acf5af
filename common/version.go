package common

// Version is stamped into exported cookie jar snapshots. Release builds
// overwrite it from main through ldflags.
var Version = "0.0.0-dev"

// UserAgent is the default User-Agent header of the request engine.
func UserAgent() string {
	return "jetta/" + Version
}
