// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package monitor

import "golang.org/x/mod/semver"

// Version information for the monitor runtime.
const (
	// Version is the current version of the monitor runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the monitor subsystem.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Algorithm names the locking scheme.
	Algorithm string

	// MaxRecursion is the active thin-lock nesting limit.
	MaxRecursion uint32

	// Reservation reports whether biased locking is on.
	Reservation bool

	// Threads is the number of attached threads.
	Threads int
}

// GetInfo returns information about the active runtime.
//
// Example:
//
//	info := monitor.GetInfo()
//	fmt.Printf("thinmon %s (%s)\n", info.Version, info.Algorithm)
func GetInfo() Info {
	r := state()
	opts := r.eng.Options()
	return Info{
		Version:      Version,
		Algorithm:    "reserved thin locks with fat monitor inflation",
		MaxRecursion: opts.MaxRecursion,
		Reservation:  !opts.DisableReservation,
		Threads:      r.reg.Live(),
	}
}

// Compatible reports whether code written against version v can use this
// runtime.
//
// v is a semantic version with or without the leading "v". It is
// compatible when it is not newer than Version and shares its major
// version; before 1.0 the minor version must match too.
//
// Example:
//
//	monitor.Compatible("v0.1.0") // true
//	monitor.Compatible("0.2.0")  // false: newer minor before 1.0
//	monitor.Compatible("v1.0.0") // false: different major
func Compatible(v string) bool {
	if len(v) > 0 && v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	cur := "v" + Version
	if semver.Major(v) != semver.Major(cur) {
		return false
	}
	if semver.Major(cur) == "v0" && semver.MajorMinor(v) != semver.MajorMinor(cur) {
		return false
	}
	return semver.Compare(v, cur) <= 0
}
