package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aixgo-dev/nutrilog/internal/commands"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "dev"

func main() {
	if err := commands.NewRootCmd(Version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
