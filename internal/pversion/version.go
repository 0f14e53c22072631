// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion reports which code a who-ldap binary was built from.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
	apimachineryversion "k8s.io/apimachinery/pkg/version"
	k8sstrings "k8s.io/utils/strings"
)

// readBuildInfo is meant to be overwritten by tests.
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var readBuildInfo = debug.ReadBuildInfo

// gitVersion is set using a linker flag
// -ldflags "-X 'github.com/m-martinez/who-ldap/internal/pversion.gitVersion=v9.8.7'"
// (or set for unit tests).
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var gitVersion string

const unreleased = "v0.0.0"

// Get returns the overall codebase version, combining the linker provided release tag with
// the VCS stamp that the go toolchain embeds in every binary.
func Get() apimachineryversion.Info {
	info := apimachineryversion.Info{
		Major:        "0",
		Minor:        "0",
		GitVersion:   unreleased,
		GitTreeState: "dirty",
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if v, err := semver.NewVersion(strings.TrimPrefix(gitVersion, "v")); err == nil && v != nil {
		info.GitVersion = gitVersion
		info.Major = fmt.Sprintf("%d", v.Major)
		info.Minor = fmt.Sprintf("%d", v.Minor)
	}

	if buildInfo, ok := readBuildInfo(); ok {
		applyVCSSettings(&info, buildInfo.Settings)
	}

	if info.GitVersion == unreleased && info.GitCommit != "" {
		info.GitVersion += fmt.Sprintf("-%s-%s", k8sstrings.ShortenString(info.GitCommit, 8), info.GitTreeState)
	}

	return info
}

func applyVCSSettings(info *apimachineryversion.Info, settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			info.GitCommit = setting.Value
		case "vcs.time":
			info.BuildDate = setting.Value
		case "vcs.modified":
			if setting.Value == "false" {
				info.GitTreeState = "clean"
			}
		}
	}
}
