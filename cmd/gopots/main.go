// Package main provides the gopots CLI for training imputation models and
// filling in missing values of CSV time series.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one command and returns the process exit code.
func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("gopots %s\n", version)
	case "train":
		err = runTrain(ctx, args[1:])
	case "impute":
		err = runImpute(ctx, args[1:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gopots %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Println("gopots - partially observed time series imputation")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Train SAITS, Transformer or StemGNN and save the weights")
	fmt.Println("  impute     Fill missing values of a CSV file with saved weights")
	fmt.Println("  version    Show version")
	fmt.Println("")
	fmt.Println("Run 'gopots <command> -h' for the command flags.")
}
