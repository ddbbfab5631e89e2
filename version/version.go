package version

// Set at build time with -ldflags "-X calcbridge/version.Version=...".
var (
	Version   = "v0.1.0"
	GitCommit = "HEAD"
)
