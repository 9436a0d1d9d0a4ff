package common

// Version is overwritten at build time with -ldflags "-X github.com/wagnerflo/thincf/common.Version=...".
var Version = "dev"

// PackageName is used as the metrics namespace.
const PackageName = "thincf"
