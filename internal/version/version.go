package version

// Version is overridden at build time with -ldflags "-X telchat/internal/version.Version=...".
var Version = "dev"
