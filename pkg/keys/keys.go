// Package keys manages the single local Ed25519 keypair sshpod presents to
// every remote sshd it bootstraps, cached under $HOME/.cache/sshpod/ so
// repeated invocations reuse one identity instead of minting a new one per
// connection.
package keys

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sasha-s/go-deadlock"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

const (
	cacheDirName   = "sshpod"
	privateKeyName = "id_ed25519"
	publicKeyName  = "id_ed25519.pub"
)

// Cache guards key creation with a mutex so that concurrent callers within
// the same process never race two ssh-keygen processes against the same
// cache directory. Separate sshpod processes are not serialized by it.
type Cache struct {
	mu deadlock.Mutex

	// keygen is the keygen binary name, injectable for tests.
	keygen string
}

// NewCache returns a Cache that shells out to the real "ssh-keygen".
func NewCache() *Cache {
	return &Cache{keygen: "ssh-keygen"}
}

// Dir returns $HOME/.cache/sshpod, failing if HOME is unset.
func Dir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", sshpoderr.New(sshpoderr.SshdStartFailed, "HOME is not set; cannot locate local key cache")
	}
	return filepath.Join(home, ".cache", cacheDirName), nil
}

// EnsureLocalKey guarantees the Ed25519 keypair exists under the cache
// directory, generating it with an empty passphrase on first use, and
// returns the trimmed contents of the public key.
func (c *Cache) EnsureLocalKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to create local key cache directory")
	}

	privatePath := filepath.Join(dir, privateKeyName)
	publicPath := filepath.Join(dir, publicKeyName)

	_, privateErr := os.Stat(privatePath)
	_, publicErr := os.Stat(publicPath)
	if os.IsNotExist(privateErr) || os.IsNotExist(publicErr) {
		if err := c.generate(privatePath); err != nil {
			return "", err
		}
	}

	contents, err := os.ReadFile(publicPath)
	if err != nil {
		return "", sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to read local public key")
	}
	return strings.TrimSpace(string(contents)), nil
}

func (c *Cache) generate(privatePath string) error {
	bin := c.keygen
	if bin == "" {
		bin = "ssh-keygen"
	}
	cmd := exec.Command(bin, "-t", "ed25519", "-N", "", "-f", privatePath, "-q")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "ssh-keygen failed: "+strings.TrimSpace(stderr.String()))
	}
	return nil
}
