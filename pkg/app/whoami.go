package app

import (
	"os/user"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// currentUsername resolves the caller's OS username, used as the default
// login user when --user is absent or empty.
func currentUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to determine current username")
	}
	return u.Username, nil
}
