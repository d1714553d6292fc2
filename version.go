package keeper

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/aretw0/keeper.Version=v0.3.0" ./cmd/keeper
var Version = "dev"
