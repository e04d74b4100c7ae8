// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package data is a collection of tools that facilitate fetching dataset files: resolving paths,
// downloading with a progress bar and validating checksums.
//
// Graph parsing lives in the subpackage graph, and edge splitting in edgesplit.
package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// FileExists returns true if file or directory exists.
// It panics for errors other than the file not existing (e.g.: permission denied).
func FileExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	panic(err)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
func ReplaceTildeInDir(dir string) string {
	if len(dir) == 0 || dir[0] != '~' {
		return dir
	}
	usr, err := user.Current()
	if err != nil {
		klog.Warningf("Failed to find home directory to expand %q: %v", dir, err)
		return dir
	}
	return path.Join(usr.HomeDir, dir[1:])
}

// IsURL returns whether source is an http(s) URL, as opposed to a local path.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// ValidateChecksum verifies that the sha256 checksum of the file in the given path matches the checksum
// given. If it fails, it will remove the file (!) and return and error.
func ValidateChecksum(path, checkHash string) error {
	hasher := sha256.New()
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %q to validate checksum", path)
	}
	defer func() {
		_ = f.Close() // Discard reading error on Close.
	}()

	_, err = io.Copy(hasher, f)
	if err != nil {
		return errors.Wrapf(err, "reading %q to validate checksum", path)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash != strings.ToLower(checkHash) {
		err = errors.Errorf("file %q sha256 hash is %q, but expected %q, deleting file.",
			path, fileHash, checkHash)
		if e2 := os.Remove(path); e2 != nil {
			klog.Errorf("Failed to remove %q, which failed checksum test. Please remove it. %+v", path, e2)
		}
		return err
	}
	return nil
}

// copyBytesBar copies bytes from an io.Reader to an io.Writer while displaying a progressbar.
type copyBytesBar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// newCopyBytesBar creates a new copyBytesBar. If contentLength is unknown (< 0) the bar
// shows a spinner.
func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	description := "downloading"
	if contentLength >= 0 {
		description = humanize.IBytes(uint64(contentLength))
	}
	return &copyBytesBar{
		w: w,
		bar: progressbar.NewOptions64(contentLength,
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: ".",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

// Write implements io.Write, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	_ = bar.bar.Add(n)
	return
}

// CopyWithProgressBar is similar to io.Copy, but updates the progress bar with the amount
// of data copied. contentLength can be -1 if unknown.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	_ = bar.bar.Finish()
	fmt.Println()
	return
}

// Download file from url and save at given path. Attempts to create directory
// if it doesn't yet exist.
//
// Optionally, use showProgressBar.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath = ReplaceTildeInDir(filePath)
	err = os.MkdirAll(filepath.Dir(filePath), 0777)
	if err != nil && !os.IsExist(err) {
		err = errors.Wrapf(err, "Failed to create the directory for the path: %q", filepath.Dir(filePath))
		return
	}
	resp, err := http.Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: %s", url, resp.Status)
	}

	// Download to a temporary file, and rename at the end: a partial download is never mistaken
	// for a complete file.
	tmpPath := filePath + ".downloading"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", tmpPath)
	}
	if showProgressBar {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmpPath)
	}
	if err = os.Rename(tmpPath, filePath); err != nil {
		return 0, errors.Wrapf(err, "failed renaming %q to %q", tmpPath, filePath)
	}
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will download the file
// from the given URL.
//
// If checkHash is provided, it checks that the file has the hash or fail.
func DownloadIfMissing(url, filePath, checkHash string, showProgressBar bool) error {
	filePath = ReplaceTildeInDir(filePath)
	if !FileExists(filePath) {
		klog.Infof("Downloading %s ...", url)
		size, err := Download(url, filePath, showProgressBar)
		if err != nil {
			return err
		}
		klog.V(1).Infof("Downloaded %s to %q", humanize.IBytes(uint64(size)), filePath)
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}

// Fetch resolves a dataset source to a local file path: local paths are returned as is (with "~"
// expanded), and URLs are downloaded into dataDir (if not there yet) and the local copy path is returned.
//
// If checkHash is provided, the local file is validated against it.
func Fetch(source, dataDir, checkHash string, showProgressBar bool) (string, error) {
	if !IsURL(source) {
		filePath := ReplaceTildeInDir(source)
		if checkHash != "" {
			if err := ValidateChecksum(filePath, checkHash); err != nil {
				return "", err
			}
		}
		return filePath, nil
	}
	if dataDir == "" {
		dataDir = os.TempDir()
	}
	parsed, err := url.Parse(source)
	if err != nil {
		return "", errors.Wrapf(err, "invalid dataset URL %q", source)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		return "", errors.Errorf("cannot find a file name in dataset URL %q", source)
	}
	filePath := filepath.Join(ReplaceTildeInDir(dataDir), name)
	if err := DownloadIfMissing(source, filePath, checkHash, showProgressBar); err != nil {
		return "", err
	}
	return filePath, nil
}
