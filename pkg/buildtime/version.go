// Package buildtime holds what is known when scalarboard is built.
//
// Set them with ldflags:
//
//	go build -ldflags "-X github.com/opst/scalarboard/pkg/buildtime.version=v1.0.0 -X github.com/opst/scalarboard/pkg/buildtime.revision=$(git rev-parse HEAD)"
package buildtime

var (
	version  = "dev"
	revision = "unknown"
)

// version string when this scalarboard has been built.
func VERSION() string {
	return version
}

func GIT_REVISION() string {
	return revision
}

func VersionString() string {
	return version + " (commit: " + revision + ")"
}
