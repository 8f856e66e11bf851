package version

// Set at build time with
//
//	-ldflags "-X github.com/ChristianF88/pradix/version.Version=v1.0.0 -X github.com/ChristianF88/pradix/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version = "dev"
	Date    = ""
	Commit  = ""
)
