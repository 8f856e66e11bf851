package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChristianF88/pradix/cli"
	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.App.RunContext(ctx, os.Args); err != nil {
		fmt.Println("Error running CLI app:", err)
		klog.Flush()
		os.Exit(1)
	}
}
