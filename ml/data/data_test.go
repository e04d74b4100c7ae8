// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const edgeListContent = "0 1\n1 2\n2 3\n3 0\n"

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestFetch(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/datasets/square.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(edgeListContent))
	}))
	defer server.Close()

	dataDir := t.TempDir()
	localPath, err := Fetch(server.URL+"/datasets/square.txt", dataDir, sha256Hex(edgeListContent), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "square.txt"), localPath)
	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, edgeListContent, string(content))

	// Second fetch uses the local copy.
	_, err = Fetch(server.URL+"/datasets/square.txt", dataDir, "", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())

	// Missing file.
	_, err = Fetch(server.URL+"/datasets/missing.txt", dataDir, "", false)
	require.Error(t, err)
	assert.False(t, FileExists(filepath.Join(dataDir, "missing.txt")))

	// Local paths are returned as is, and the wrong checksum removes the file.
	got, err := Fetch(localPath, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, localPath, got)
	_, err = Fetch(localPath, "", sha256Hex("something else"), false)
	require.Error(t, err)
	assert.False(t, FileExists(localPath))
}

func TestPaths(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.txt"))
	assert.False(t, IsURL("/tmp/a.txt"))
	assert.Equal(t, "/tmp/x", ReplaceTildeInDir("/tmp/x"))
	assert.NotEqual(t, "~/x", ReplaceTildeInDir("~/x"))
}
