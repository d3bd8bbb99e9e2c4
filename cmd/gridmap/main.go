// Package main provides the GridMap CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gridmap-ml/gridmap/ops"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("GridMap %s\n", version)
			return
		case "devices":
			fmt.Println("CPU: available")
			if err := ops.EnableWebGPU(); err != nil {
				fmt.Printf("WebGPU: unavailable (%v)\n", err)
			} else {
				fmt.Println("WebGPU: available")
			}
			return
		}
	}

	fmt.Println("GridMap - Mapped Sampling and Pooling for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  devices    Probe available compute engines")
}
