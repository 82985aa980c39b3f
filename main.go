package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/GeminiDRSoftware/GeminiCalMgr/cmd"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintln(os.Stderr, "calassoc: failed to set GOMAXPROCS:", err)
	}
	if err := cmd.RootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
