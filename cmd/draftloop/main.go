package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the flag or usage problem. Commands that
		// fail mid-run print their own error and exit themselves.
		os.Exit(2)
	}
}
