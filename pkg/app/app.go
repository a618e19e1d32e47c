// Package app is the composition root: it wires config, logging, the
// cluster client, the key cache, the bundle installer and the bridge into a
// proxy.Pipeline, and runs it for a single ProxyCommand invocation.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/imos/sshpod/pkg/bridge"
	"github.com/imos/sshpod/pkg/bundle"
	"github.com/imos/sshpod/pkg/config"
	"github.com/imos/sshpod/pkg/keys"
	"github.com/imos/sshpod/pkg/kubectl"
	"github.com/imos/sshpod/pkg/log"
	"github.com/imos/sshpod/pkg/proxy"
)

// App holds every long-lived collaborator the proxy subcommand needs.
type App struct {
	Config   *config.AppConfig
	Log      *logrus.Entry
	Cluster  *kubectl.Client
	Pipeline *proxy.Pipeline
}

// NewApp bootstraps the composition root from a built AppConfig.
func NewApp(cfg *config.AppConfig) (*App, error) {
	logger := log.NewLogger(cfg)
	cluster := kubectl.NewClient(logger)
	keyCache := keys.NewCache()
	installer := bundle.NewInstaller()
	br := bridge.New()

	pipeline := &proxy.Pipeline{
		Cluster: cluster,
		Keys:    keyCache,
		Bundle:  installer,
		Bridge:  br,
		Whoami:  currentUsername,
	}

	return &App{
		Config:   cfg,
		Log:      logger,
		Cluster:  cluster,
		Pipeline: pipeline,
	}, nil
}

// Run drives one proxy invocation over the process's real stdio. The
// pipeline's context is cancelled on SIGINT/SIGTERM; the bridge consults it
// only while dialling the forwarded port, and stops the port-forward when it
// returns.
func (app *App) Run(host, user string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return app.Pipeline.Run(ctx, host, user, os.Stdin, os.Stdout)
}
