package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/imos/sshpod/pkg/app"
	"github.com/imos/sshpod/pkg/config"
	"github.com/imos/sshpod/pkg/sshpoderr"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	debuggingFlag = false

	proxyHost string
	proxyUser string
	proxyPort int
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("sshpod")
	flaggy.SetDescription("A transparent SSH ProxyCommand for Kubernetes workloads")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/imos/sshpod"
	flaggy.Bool(&debuggingFlag, "d", "debug", "enable debug logging")
	flaggy.SetVersion(info)

	proxyCmd := flaggy.NewSubcommand("proxy")
	proxyCmd.Description = "Bridge this process's stdio to a Kubernetes workload's sshd (invoked as an SSH ProxyCommand)"
	proxyCmd.String(&proxyHost, "", "host", "virtual hostname, e.g. pod--app.namespace--ns.context--ctx.sshpod")
	proxyCmd.String(&proxyUser, "", "user", "login user; defaults to the caller's OS username")
	proxyCmd.Int(&proxyPort, "", "port", "accepted for SSH's ProxyCommand calling convention; unused")
	flaggy.AttachSubcommand(proxyCmd, 1)

	flaggy.Parse()

	if !proxyCmd.Used {
		flaggy.ShowHelpAndExit("a subcommand is required")
	}
	if proxyHost == "" {
		flaggy.ShowHelpAndExit("--host is required")
	}

	appConfig, err := config.NewAppConfig(version, commit, date, debuggingFlag)
	if err != nil {
		log.Fatal(err.Error())
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		log.Fatal(err.Error())
	}

	if err := a.Run(proxyHost, proxyUser); err != nil {
		reportAndExit(a, err)
	}
}

func reportAndExit(a *app.App, err error) {
	red := color.New(color.FgRed).SprintFunc()

	if se, ok := err.(*sshpoderr.Error); ok {
		a.Log.WithField("kind", se.Kind.String()).Error(se.Error())
		fmt.Fprintln(os.Stderr, red(se.Error()))
		os.Exit(1)
	}

	wrapped := errors.Wrap(err, 0)
	stackTrace := wrapped.ErrorStack()
	a.Log.Error(stackTrace)
	fmt.Fprintln(os.Stderr, red("sshpod failed:"))
	log.Fatalf("\n%s", stackTrace)
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		if len(commit) > 7 {
			version = commit[:7]
		} else {
			version = commit
		}
	}
	if vcsTime, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.time"
	}); ok {
		date = vcsTime.Value
	}
}
