package messages

// Installer and collaborator strings.
const (
	InstallerSystemRequired   = "installer system is required"
	InstallerLocationRequired = "install location is required"
	InstallerPackageRequired  = "package path is required"

	InstallerResolveLocationFmt = "resolve install location %s: %w"
	InstallerCreateLocationFmt  = "create install location %s: %w"

	DepsMissingHeaderFmt = "package dependencies missing from this host: %s"
	DepsQueryFailedFmt   = "query host for dependency %s: %w"
	DepsDeclaredFmt      = "read declared dependencies of %s: %w"

	ArchiveUnknownKindFmt    = "unrecognized package extension on %s (expected .rpm or .deb)"
	ArchiveEscapingEntryFmt  = "archive entry %s escapes the target directory"
	ArchiveCompressionFmt    = "unsupported payload compression %q"
	ArchivePayloadFormatFmt  = "unsupported rpm payload format %q (expected cpio)"
	ArchiveMissingDataFmt    = "no data.tar member found in %s"
	ArchiveMissingControlFmt = "no control.tar member found in %s"

	SettingsReadFmt    = "read settings file %s: %w"
	SettingsDecodeFmt  = "decode settings file %s: %w"
	SettingsVersionFmt = "settings field %s: invalid version %q"
	SettingsOrderFmt   = "settings: minimum version %s is above maximum version %s"
)
