package config

// Build metadata, set at link time:
//
//	go build -ldflags "-X github.com/edirooss/blocklog/internal/config.Version=v1.2.0 ..."
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
