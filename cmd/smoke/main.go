package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/blocher/simpleai/internal/smoke"
	"github.com/blocher/simpleai/internal/version"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-v" || args[0] == "--version" || args[0] == "version") {
		fmt.Println(version.String())
		return
	}

	settingsFile := ""
	filter := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--settings":
			if i+1 >= len(args) {
				usage()
				os.Exit(1)
			}
			i++
			settingsFile = args[i]
		case "-h", "--help":
			usage()
			return
		default:
			filter = append(filter, args[i])
		}
	}

	providers, err := smoke.Providers(filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smoke: %v\n", err)
		usage()
		os.Exit(1)
	}

	runner := smoke.Runner{SettingsFile: settingsFile}
	outcomes := runner.Matrix(context.Background(), providers)

	passed, failed, skipped := 0, 0, 0
	for _, outcome := range outcomes {
		switch outcome.Status {
		case smoke.StatusPass:
			passed++
			color.Green("PASS   %-10s %6.1fs  citations=%d  %s",
				outcome.Provider, outcome.Elapsed.Seconds(), outcome.Citations, outcome.Detail)
		case smoke.StatusNoKey:
			skipped++
			color.Yellow("NO-KEY %-10s %s", outcome.Provider, outcome.Detail)
		default:
			failed++
			color.Red("FAIL   %-10s %6.1fs  %s", outcome.Provider, outcome.Elapsed.Seconds(), outcome.Detail)
		}
	}

	fmt.Printf("\n%d passed, %d failed, %d without keys\n", passed, failed, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: smoke [--settings path] [provider...]")
	fmt.Println("       smoke version")
}
