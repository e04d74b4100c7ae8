// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Save the Graph in gob format, so it can be reloaded without parsing the original file.
func (g *Graph) Save(filePath string) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		err = errors.Wrapf(err, "creating %q to save Graph", filePath)
		return
	}
	enc := gob.NewEncoder(f)
	err = enc.Encode(g)
	if err != nil {
		_ = f.Close()
		err = errors.WithMessagef(err, "encoding Graph to save to %q", filePath)
		return
	}
	err = f.Close()
	if err != nil {
		err = errors.Wrapf(err, "close file %q, where Graph was saved", filePath)
	}
	return
}

// LoadGob loads a Graph previously saved with Graph.Save.
// If filePath doesn't exist, it returns an error that can be checked with [os.IsNotExist].
func LoadGob(filePath string) (g *Graph, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		err = errors.Wrapf(err, "trying to load Graph from %q", filePath)
		return
	}
	defer func() { _ = f.Close() }()
	dec := gob.NewDecoder(f)
	g = &Graph{}
	err = dec.Decode(g)
	if err != nil {
		g = nil
		err = errors.Wrapf(err, "trying to decode Graph from %q", filePath)
		return
	}
	if err = g.validate(); err != nil {
		g = nil
		err = errors.WithMessagef(err, "corrupted Graph in %q", filePath)
	}
	return
}

// validate checks that the CSR layout is consistent with the edge list.
func (g *Graph) validate() error {
	if len(g.Targets) != 2*len(g.EdgeList) {
		return errors.Errorf("%d targets for %d edges", len(g.Targets), len(g.EdgeList))
	}
	if len(g.Starts) > 0 && int(g.Starts[len(g.Starts)-1]) != len(g.Targets) {
		return errors.Errorf("last start is %d, but there are %d targets", g.Starts[len(g.Starts)-1], len(g.Targets))
	}
	numNodes := int32(len(g.Starts))
	for _, e := range g.EdgeList {
		if e.U < 0 || e.U >= e.V || e.V >= numNodes {
			return errors.Errorf("invalid edge %s", e)
		}
	}
	return nil
}

// cacheEntry is the content of a LoadCached cache file: the graph and the options it was loaded with.
type cacheEntry struct {
	Options LoadOptions
	Graph   *Graph
}

// resolvedOptions fills in the defaults of opts that depend on the file path.
func resolvedOptions(path string, opts LoadOptions) LoadOptions {
	if opts.Format == "" {
		opts.Format = FormatFromPath(path)
	}
	return opts
}

func saveCache(cachePath string, entry cacheEntry) error {
	f, err := os.Create(cachePath)
	if err != nil {
		return errors.Wrapf(err, "creating graph cache %q", cachePath)
	}
	if err = gob.NewEncoder(f).Encode(&entry); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encoding graph cache %q", cachePath)
	}
	return errors.Wrapf(f.Close(), "closing graph cache %q", cachePath)
}

// loadCache returns the cached graph, or an error if the cache is unreadable or was created with
// different options.
func loadCache(cachePath string, opts LoadOptions) (*Graph, error) {
	f, err := os.Open(cachePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening graph cache %q", cachePath)
	}
	defer func() { _ = f.Close() }()
	var entry cacheEntry
	if err = gob.NewDecoder(f).Decode(&entry); err != nil {
		return nil, errors.Wrapf(err, "decoding graph cache %q", cachePath)
	}
	if entry.Options != opts {
		return nil, errors.Errorf("graph cache %q was created with options %+v, now loading with %+v",
			cachePath, entry.Options, opts)
	}
	if entry.Graph == nil {
		return nil, errors.Errorf("graph cache %q has no graph", cachePath)
	}
	if err = entry.Graph.validate(); err != nil {
		return nil, errors.WithMessagef(err, "corrupted graph cache %q", cachePath)
	}
	return entry.Graph, nil
}

// LoadCached loads the graph in path, using a gob cache in cachePath (if not empty).
// The cache is used only if it is newer than the source file and was created with the same
// options, and it is (re-)created otherwise.
func LoadCached(path, cachePath string, opts LoadOptions) (*Graph, error) {
	if cachePath == "" {
		return Load(path, opts)
	}
	opts = resolvedOptions(path, opts)
	sourceInfo, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "graph file %q", path)
	}
	if cacheInfo, err := os.Stat(cachePath); err == nil && cacheInfo.ModTime().After(sourceInfo.ModTime()) {
		g, err := loadCache(cachePath, opts)
		if err == nil {
			klog.V(1).Infof("Using cached %s from %q", g, cachePath)
			return g, nil
		}
		klog.V(1).Infof("Ignoring graph cache: %v", err)
	}
	g, err := Load(path, opts)
	if err != nil {
		return nil, err
	}
	if err := saveCache(cachePath, cacheEntry{Options: opts, Graph: g}); err != nil {
		klog.Warningf("Failed to save graph cache: %+v", err)
	}
	return g, nil
}
