package bundle

import (
	"embed"
)

// Embedded is satisfied by a compiled-in bundle source. Production builds
// wire bundles/ up with real per-arch payloads via the build pipeline; this
// repository ships only a placeholder so Get always misses and installation
// falls through to the on-disk search in locateBundle.
type Embedded interface {
	Get(arch string) ([]byte, bool)
}

//go:embed all:bundles
var bundleFS embed.FS

type embeddedFS struct{}

// DefaultEmbedded is the Embedded backed by the binary's //go:embed payload.
var DefaultEmbedded Embedded = embeddedFS{}

func (embeddedFS) Get(arch string) ([]byte, bool) {
	name := "bundles/openssh-bundle-" + archFileComponent(arch) + ".tar.xz"
	data, err := bundleFS.ReadFile(name)
	if err != nil {
		return nil, false
	}
	return data, true
}

func archFileComponent(arch string) string {
	switch arch {
	case "linux/amd64":
		return "linux-amd64"
	case "linux/arm64":
		return "linux-arm64"
	default:
		return "unknown"
	}
}
