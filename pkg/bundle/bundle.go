// Package bundle installs the sshd payload into a target container: it
// detects the remote architecture, skips work when an already-installed
// bundle matches, and otherwise streams a compressed archive in over a
// kubectl exec, trying progressively less capable decompressors until one
// succeeds.
package bundle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"github.com/ulikunitz/xz"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// Version is the bundle-version marker string written to BASE/bundle/VERSION
// and compared against on every invocation to decide whether a reinstall is
// needed.
const Version = "sshpod-bundle-1"

// Cluster is the subset of *kubectl.Client the installer needs.
type Cluster interface {
	ExecCapture(clusterContext, namespace, pod, container string, argv []string) (string, error)
	ExecCaptureOptional(clusterContext, namespace, pod, container string, argv []string) (string, bool, error)
	ExecWithInput(clusterContext, namespace, pod, container string, argv []string, input []byte) (string, error)
}

// DetectRemoteArch runs `uname -m` in the target container and maps it onto
// one of the two supported bundle architectures.
func DetectRemoteArch(c Cluster, clusterContext, namespace, pod, container string) (string, error) {
	out, err := c.ExecCapture(clusterContext, namespace, pod, container, []string{"uname", "-m"})
	if err != nil {
		return "", err
	}
	switch out {
	case "x86_64", "amd64":
		return "linux/amd64", nil
	case "aarch64", "arm64":
		return "linux/arm64", nil
	default:
		return "", sshpoderr.New(sshpoderr.UnsupportedArch, "unsupported remote architecture: "+out)
	}
}

// Installer ties an Embedded payload source to a Cluster to perform
// EnsureBundle. Locate is injectable so tests can avoid the real filesystem
// search rooted at the test binary's own path.
type Installer struct {
	Embedded Embedded
	Locate   func(arch string) (string, error)
}

// NewInstaller returns an Installer backed by the compiled-in bundle and the
// real on-disk candidate search.
func NewInstaller() *Installer {
	return &Installer{Embedded: DefaultEmbedded, Locate: locateBundle}
}

// EnsureBundle implements C5: idempotence check, payload sourcing, and the
// three-tier install fallback ladder.
func (inst *Installer) EnsureBundle(c Cluster, clusterContext, namespace, pod, container, base, arch string) error {
	versionPath := base + "/bundle/VERSION"
	archPath := base + "/bundle/ARCH"

	remoteVersion, versionOK, err := c.ExecCaptureOptional(clusterContext, namespace, pod, container, []string{"cat", versionPath})
	if err != nil {
		return err
	}
	remoteArch, archOK, err := c.ExecCaptureOptional(clusterContext, namespace, pod, container, []string{"cat", archPath})
	if err != nil {
		return err
	}
	if versionOK && archOK && remoteVersion == Version && remoteArch == arch {
		return nil
	}

	payload, err := inst.payload(arch)
	if err != nil {
		return err
	}

	return inst.install(c, clusterContext, namespace, pod, container, base, arch, payload)
}

func (inst *Installer) payload(arch string) ([]byte, error) {
	if data, ok := inst.Embedded.Get(arch); ok {
		return data, nil
	}
	path, err := inst.Locate(arch)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sshpoderr.Wrap(sshpoderr.BundleMissing, err, "failed to read bundle file "+path)
	}
	return data, nil
}

// install tries the xz, gzip, then plain strategies in order, returning on
// first success. All three scripts share the same trailer: chmod BASE and
// BASE/bundle to 0700, then write the VERSION/ARCH marker files at 0600.
func (inst *Installer) install(c Cluster, clusterContext, namespace, pod, container, base, arch string, xzPayload []byte) error {
	xzScript := inflateScript(base, arch, `tar xJf - -C "%s/bundle"`)
	_, xzErr := c.ExecWithInput(clusterContext, namespace, pod, container, []string{"sh", "-c", xzScript}, xzPayload)
	if xzErr == nil {
		return nil
	}

	gzipPayload, reencodeErr := reencodeXZtoGzip(xzPayload)
	if reencodeErr != nil {
		return sshpoderr.Wrap(sshpoderr.BundleInstallFailed, reencodeErr, "failed to re-encode bundle for gzip fallback")
	}
	gzipScript := inflateScript(base, arch, `tar xzf - -C "%s/bundle"`)
	_, gzipErr := c.ExecWithInput(clusterContext, namespace, pod, container, []string{"sh", "-c", gzipScript}, gzipPayload)
	if gzipErr == nil {
		return nil
	}

	plainPayload, plainErr := decodeXZ(xzPayload)
	if plainErr != nil {
		return sshpoderr.Wrap(sshpoderr.BundleInstallFailed, plainErr, "failed to decompress bundle for plain install fallback")
	}
	plainScript := inflateScript(base, arch, `tar xf - -C "%s/bundle"`)
	_, plainErrRun := c.ExecWithInput(clusterContext, namespace, pod, container, []string{"sh", "-c", plainScript}, plainPayload)
	if plainErrRun != nil {
		return sshpoderr.Wrap(sshpoderr.BundleInstallFailed, plainErrRun,
			fmt.Sprintf("all bundle install strategies failed (xz: %v; gzip: %v)", xzErr, gzipErr))
	}
	return nil
}

// inflateScript builds a one-shot shell script that unpacks the streamed
// payload with the given tar invocation, then writes the version/arch marker
// files. extractCmd must contain exactly one "%s" for base.
func inflateScript(base, arch, extractCmd string) string {
	extract := fmt.Sprintf(extractCmd, base)
	return fmt.Sprintf(
		`umask 077; mkdir -p %q; %s && chmod 0700 %q %q && printf '%%s' %q > %q && chmod 0600 %q && printf '%%s' %q > %q && chmod 0600 %q`,
		base+"/bundle", extract,
		base, base+"/bundle",
		Version, base+"/bundle/VERSION", base+"/bundle/VERSION",
		arch, base+"/bundle/ARCH", base+"/bundle/ARCH",
	)
}

// reencodeXZtoGzip locally decompresses an xz stream and recompresses it as
// gzip, for containers that have gzip/tar but no xz binary.
func reencodeXZtoGzip(xzPayload []byte) ([]byte, error) {
	plain, err := decodeXZ(xzPayload)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	w := gzip.NewWriter(&out)
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeXZ(xzPayload []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(xzPayload))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// locateBundle searches, in order and de-duplicated, the candidate
// directories where a sibling bundle file might live: cwd, ./bundles/, the
// binary's own directory, that directory's bundles/, and the grandparent's
// bundles/.
func locateBundle(arch string) (string, error) {
	filename := "openssh-bundle-" + archFileComponent(arch) + ".tar.xz"

	var candidates []string
	candidates = append(candidates, filename)
	candidates = append(candidates, filepath.Join("bundles", filename))

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(dir, filename))
		candidates = append(candidates, filepath.Join(dir, "bundles", filename))
		candidates = append(candidates, filepath.Join(filepath.Dir(dir), "bundles", filename))
	}

	for _, candidate := range lo.Uniq(candidates) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", sshpoderr.New(sshpoderr.BundleMissing,
		fmt.Sprintf("bundle file %s not found; place it alongside the binary or in ./bundles", filename))
}
