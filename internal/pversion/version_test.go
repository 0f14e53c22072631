// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
	apimachineryversion "k8s.io/apimachinery/pkg/version"
)

func TestGet(t *testing.T) {
	originalGitVersion := gitVersion
	t.Cleanup(func() {
		gitVersion = originalGitVersion
		readBuildInfo = debug.ReadBuildInfo
	})

	withSettings := func(settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{Settings: settings}, true
		}
	}

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)

	tests := []struct {
		name          string
		gitVersion    string
		readBuildInfo func() (*debug.BuildInfo, bool)
		wantInfo      apimachineryversion.Info
	}{
		{
			name:          "no build info and no tag",
			readBuildInfo: func() (*debug.BuildInfo, bool) { return nil, false },
			wantInfo: apimachineryversion.Info{
				Major:        "0",
				Minor:        "0",
				GitVersion:   "v0.0.0",
				GitTreeState: "dirty",
				GoVersion:    runtime.Version(),
				Compiler:     runtime.Compiler,
				Platform:     platform,
			},
		},
		{
			name:       "release tag with a clean tree",
			gitVersion: "v1.4.0",
			readBuildInfo: withSettings(
				debug.BuildSetting{Key: "vcs.revision", Value: "0123abcd"},
				debug.BuildSetting{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				debug.BuildSetting{Key: "vcs.modified", Value: "false"},
				debug.BuildSetting{Key: "GOOS", Value: "ignored"},
			),
			wantInfo: apimachineryversion.Info{
				Major:        "1",
				Minor:        "4",
				GitVersion:   "v1.4.0",
				GitCommit:    "0123abcd",
				GitTreeState: "clean",
				BuildDate:    "2026-01-02T03:04:05Z",
				GoVersion:    runtime.Version(),
				Compiler:     runtime.Compiler,
				Platform:     platform,
			},
		},
		{
			name: "untagged build uses the short commit",
			readBuildInfo: withSettings(
				debug.BuildSetting{Key: "vcs.revision", Value: "384850953501b7d66d466b4ca4d13a81bc54a7c3"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			),
			wantInfo: apimachineryversion.Info{
				Major:        "0",
				Minor:        "0",
				GitVersion:   "v0.0.0-38485095-dirty",
				GitCommit:    "384850953501b7d66d466b4ca4d13a81bc54a7c3",
				GitTreeState: "dirty",
				GoVersion:    runtime.Version(),
				Compiler:     runtime.Compiler,
				Platform:     platform,
			},
		},
		{
			name:          "tag that is not semver is ignored",
			gitVersion:    "nightly",
			readBuildInfo: withSettings(),
			wantInfo: apimachineryversion.Info{
				Major:        "0",
				Minor:        "0",
				GitVersion:   "v0.0.0",
				GitTreeState: "dirty",
				GoVersion:    runtime.Version(),
				Compiler:     runtime.Compiler,
				Platform:     platform,
			},
		},
	}

	// These tests cannot be done in Parallel due to side effects
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gitVersion = test.gitVersion
			readBuildInfo = test.readBuildInfo

			require.Equal(t, test.wantInfo, Get())
		})
	}
}
