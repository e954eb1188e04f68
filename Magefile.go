//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build builds the draftloop binary
func Build() error {
	mg.Deps(Test)
	fmt.Println("Building draftloop...")
	return sh.RunV("go", "build",
		"-o", "bin/draftloop",
		"-ldflags", "-s -w",
		"./cmd/draftloop")
}

// Test runs all tests with the race detector
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover runs tests with coverage and prints the per-function report
func Cover() error {
	fmt.Println("Running tests with coverage...")
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Lint runs golangci-lint
func Lint() error {
	fmt.Println("Running linters...")
	return sh.RunV("golangci-lint", "run")
}

// Install installs draftloop into GOBIN
func Install() error {
	mg.Deps(Test)
	return sh.RunV("go", "install", "./cmd/draftloop")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning...")
	os.RemoveAll("bin")
	os.RemoveAll("coverage.out")
	return nil
}
