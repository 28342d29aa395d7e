// Package messages centralizes user-visible strings so wording stays
// consistent between the CLI, the installer, and their tests.
package messages

// CLI strings.
const (
	RootUse   = "cb-non-package-installer"
	RootShort = "Install or upgrade Couchbase Server into a user-writable directory"
	RootLong  = "cb-non-package-installer unpacks a Couchbase Server Enterprise package (rpm or deb)\n" +
		"into a directory you own, without requiring the platform package manager or root\n" +
		"privileges. It can also upgrade an existing non-root installation in place."

	FlagInstall               = "install a package into an empty directory"
	FlagUpgrade               = "upgrade an existing non-root installation"
	FlagListSupportedVersions = "print the server version lines this installer supports"
	FlagInstallLocation       = "directory the server is (or will be) installed under"
	FlagPackage               = "path to the couchbase-server-enterprise rpm or deb package"
	FlagNoCheckDeps           = "skip checking the package's declared dependencies against this host"
	FlagSettings              = "optional TOML settings file overriding the built-in version bounds"
	FlagVerbose               = "increase log verbosity (repeat for debug output)"
	FlagVersion               = "print the installer version and exit"

	VersionTemplate  = "cb-non-package-installer {{.Version}}\n"
	VersionCommitFmt = "commit %s"
	VersionBuildFmt  = "built %s"
	VersionFullFmt   = "%s (%s)"

	ActionRequired = "one of --install, --upgrade or --list-supported-versions is required"

	SupportedVersionsHeader = "Supported Couchbase Server versions:"

	InstallSuccessFmt = "Successfully installed Couchbase Server %s under %s\n"
	UpgradeSuccessFmt = "Successfully upgraded Couchbase Server %s -> %s under %s\n"

	ErrorPrefixFmt = "Error: %v\n"
)
