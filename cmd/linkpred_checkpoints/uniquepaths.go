// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"strings"
)

// MinimalUniquePaths returns for each path its shortest suffix of path elements that no other
// path ends with. E.g.: "ckpt/cora/gcn/run-000" and "ckpt/cora/sage/run-000" become
// "gcn/run-000" and "sage/run-000".
//
// Duplicate paths are returned cleaned but otherwise complete.
func MinimalUniquePaths(paths ...string) []string {
	parts := make([][]string, len(paths))
	for ii, p := range paths {
		parts[ii] = strings.Split(filepath.Clean(p), string(filepath.Separator))
	}
	suffix := func(elems []string, n int) string {
		return filepath.Join(elems[max(0, len(elems)-n):]...)
	}
	result := make([]string, len(paths))
	for ii, elems := range parts {
		result[ii] = filepath.Clean(paths[ii])
	search:
		for n := 1; n <= len(elems); n++ {
			candidate := suffix(elems, n)
			for jj, other := range parts {
				if jj != ii && suffix(other, n) == candidate {
					continue search
				}
			}
			result[ii] = candidate
			break
		}
	}
	return result
}
