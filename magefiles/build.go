// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the notegraph project using Mage.
//
// Usage:
//
//	mage build        Compile notegraph binary to bin/
//	mage test:all     Run all tests
//	mage test:race    Run all tests with the race detector
//	mage test:cover   Write coverage.out and print the per-function summary
//	mage lint         Run golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install notegraph to GOPATH/bin
//	mage stats        Print Go LOC per source root as a JSON record
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binGit     = "git"
	binaryName = "notegraph"
	binaryDir  = "bin"
	cmdDir     = "./cmd/notegraph"
	versionVar = "github.com/mesh-intelligence/notegraph/internal/cli.Version"
)

// ldflags stamps the binary with the version from NOTEGRAPH_VERSION or, if
// unset, git describe.
func ldflags() string {
	version := os.Getenv("NOTEGRAPH_VERSION")
	if version == "" {
		out, err := sh.Output(binGit, "describe", "--tags", "--always", "--dirty")
		if err != nil {
			return ""
		}
		version = strings.TrimPrefix(out, "v")
	}
	return "-X " + versionVar + "=" + version
}

// Build compiles the notegraph binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.RemoveAll(coverProfile); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
