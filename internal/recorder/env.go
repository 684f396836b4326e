package recorder

import (
	"os"
	"os/user"
	"runtime"

	"github.com/roach88/lineage/internal/record"
)

// VersionTagger supplies a best-effort immutable code-version identity for
// a step. Implementations that shell out (e.g. git tagging) live outside
// this module; a failure must yield the unknown identity, never an abort.
type VersionTagger interface {
	Tag(stepID string) record.VersionInfo
}

// UnknownVersion is the fallback code identity.
var UnknownVersion = record.VersionInfo{Version: "unknown"}

// StaticTagger returns a fixed version identity for every step.
type StaticTagger struct {
	Info record.VersionInfo
}

// Tag returns the fixed identity.
func (t StaticTagger) Tag(string) record.VersionInfo { return t.Info }

// snapshotEnv captures the execution environment. Host, user and working
// directory are detail fields, gated by the env-detail toggle; platform and
// CPU count are always recorded.
func snapshotEnv(detail bool, storeLocation string) record.RunEnv {
	env := record.RunEnv{
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:          runtime.NumCPU(),
		StoreLocation: storeLocation,
	}
	if !detail {
		return env
	}
	if host, err := os.Hostname(); err == nil {
		env.Host = host
	}
	if u, err := user.Current(); err == nil {
		env.User = u.Username
	}
	if cwd, err := os.Getwd(); err == nil {
		env.Cwd = cwd
	}
	return env
}
