// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/tuitionchat/tuition-chat-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/tuitionchat/tuition-chat-go/internal/buildinfo.Commit=...
var Commit = ""

// Release returns the identifier reported to error tracking.
// Falls back to the commit, then to "dev".
func Release() string {
	switch {
	case Version != "":
		return "tuition-chat-go@" + Version
	case Commit != "":
		return "tuition-chat-go@" + Commit
	default:
		return "tuition-chat-go@dev"
	}
}
