package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/couchbase/cb-non-package-installer/internal/installer"
	"github.com/couchbase/cb-non-package-installer/internal/messages"
	"github.com/couchbase/cb-non-package-installer/internal/policy"
	"github.com/couchbase/cb-non-package-installer/internal/settings"
)

type rootOptions struct {
	install      bool
	upgrade      bool
	listVersions bool

	installLocation string
	packagePath     string
	settingsPath    string
	noCheckDeps     bool
	verbosity       int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(opts.verbosity, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.install, "install", false, messages.FlagInstall)
	flags.BoolVar(&opts.upgrade, "upgrade", false, messages.FlagUpgrade)
	flags.BoolVar(&opts.listVersions, "list-supported-versions", false, messages.FlagListSupportedVersions)
	flags.StringVar(&opts.installLocation, "install-location", "", messages.FlagInstallLocation)
	flags.StringVar(&opts.packagePath, "package", "", messages.FlagPackage)
	flags.StringVar(&opts.settingsPath, "settings", "", messages.FlagSettings)
	flags.BoolVar(&opts.noCheckDeps, "no-check-deps", false, messages.FlagNoCheckDeps)
	flags.CountVarP(&opts.verbosity, "verbose", "v", messages.FlagVerbose)
	// Declared here so cobra reuses -V instead of claiming -v for its own
	// default version flag.
	flags.BoolP("version", "V", false, messages.FlagVersion)

	cmd.MarkFlagsMutuallyExclusive("install", "upgrade", "list-supported-versions")
	cmd.MarkFlagsRequiredTogether("install-location", "package")

	return cmd
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	if opts.listVersions {
		return listSupportedVersions(cmd.OutOrStdout())
	}
	if !opts.install && !opts.upgrade {
		return errors.New(messages.ActionRequired)
	}

	location, err := homedir.Expand(opts.installLocation)
	if err != nil {
		return err
	}
	pkgPath, err := homedir.Expand(opts.packagePath)
	if err != nil {
		return err
	}
	bounds, err := loadBounds(opts.settingsPath)
	if err != nil {
		return err
	}

	installerOpts := installer.Options{
		PackagePath:     pkgPath,
		InstallLocation: location,
		CheckDeps:       !opts.noCheckDeps,
		Override:        policy.OverrideEnabled(),
		Bounds:          bounds,
		System:          installer.RealSystem{},
		Out:             cmd.OutOrStdout(),
	}
	if opts.install {
		return installer.Install(installerOpts)
	}
	return installer.Upgrade(installerOpts)
}

// loadBounds resolves the version bounds, applying the optional settings
// file on top of the built-in defaults.
func loadBounds(settingsPath string) (policy.Bounds, error) {
	if settingsPath == "" {
		var none *settings.Settings
		return none.Bounds()
	}
	path, err := homedir.Expand(settingsPath)
	if err != nil {
		return policy.Bounds{}, err
	}
	s, err := settings.Load(path)
	if err != nil {
		return policy.Bounds{}, err
	}
	return s.Bounds()
}

func listSupportedVersions(out io.Writer) error {
	if _, err := color.New(color.Bold).Fprintln(out, messages.SupportedVersionsHeader); err != nil {
		return err
	}
	for _, line := range policy.SupportedLines() {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// configureLogging maps repeated -v flags onto log levels: warnings by
// default, -v for progress, -vv for step-by-step debug output.
func configureLogging(verbosity int, errOut io.Writer) {
	log.SetOutput(errOut)
	switch {
	case verbosity <= 0:
		log.SetLevel(log.WarnLevel)
	case verbosity == 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
}
