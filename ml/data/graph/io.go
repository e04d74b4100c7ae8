// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Format of a graph file.
type Format string

const (
	// FormatEdgeList has one edge per line: the first two integer fields are the endpoints.
	// Fields may be separated by whitespace, commas, tabs or semicolons. Lines starting with `#` are
	// ignored, and so is a first line whose fields are not integers (a header).
	FormatEdgeList Format = "edgelist"

	// FormatCSV is a CSV file with a header, where two named columns hold the endpoints.
	FormatCSV Format = "csv"

	// FormatEdgeIndex has two lines of integers: the source nodes and the target nodes of each edge.
	FormatEdgeIndex Format = "edgeindex"

	// FormatAdjacency is a dense matrix, one row per line: every non-zero entry (i, j) is an edge.
	FormatAdjacency Format = "adjacency"
)

// Formats lists all supported formats.
var Formats = []Format{FormatEdgeList, FormatCSV, FormatEdgeIndex, FormatAdjacency}

// ParseFormat converts a format name, as used in flags and configuration files.
// An empty name returns an empty Format, which Load infers from the file name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "" || slices.Contains(Formats, f) {
		return f, nil
	}
	return "", errors.Errorf("unknown graph format %q, valid values are %q", name, Formats)
}

// FormatFromPath guesses the format from a file name: `.csv` files are FormatCSV,
// names ending in `_adj.txt` are FormatAdjacency, anything else FormatEdgeList.
func FormatFromPath(path string) Format {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".csv"):
		return FormatCSV
	case strings.HasSuffix(base, "_adj.txt"):
		return FormatAdjacency
	default:
		return FormatEdgeList
	}
}

// LoadOptions configure Load and Read.
type LoadOptions struct {
	// Format of the file. If empty it's inferred with FormatFromPath (only for Load).
	Format Format

	// NumNodes in the graph. If <= 0 it's inferred from the largest node index (or the matrix size for
	// FormatAdjacency).
	NumNodes int

	// SourceColumn and TargetColumn name the endpoint columns for FormatCSV.
	// They default to "source" and "target".
	SourceColumn, TargetColumn string
}

// Load reads a graph from the file in path. See LoadOptions.
func Load(path string, opts LoadOptions) (*Graph, error) {
	if opts.Format == "" {
		opts.Format = FormatFromPath(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open graph file %q", path)
	}
	defer func() { _ = f.Close() }()
	g, err := Read(f, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading %q (format %s)", path, opts.Format)
	}
	klog.V(1).Infof("Loaded %s from %q", g, path)
	return g, nil
}

// Read parses a graph from r. opts.Format must be set.
func Read(r io.Reader, opts LoadOptions) (*Graph, error) {
	var (
		edges    []Edge
		numNodes = opts.NumNodes
		err      error
	)
	switch opts.Format {
	case FormatEdgeList:
		edges, err = readEdgeList(r)
	case FormatCSV:
		edges, err = readCSV(r, opts.SourceColumn, opts.TargetColumn)
	case FormatEdgeIndex:
		edges, err = readEdgeIndex(r)
	case FormatAdjacency:
		var size int
		edges, size, err = readAdjacency(r)
		if numNodes <= 0 {
			numNodes = size
		}
	default:
		return nil, errors.Errorf("unknown graph format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	return New(numNodes, edges)
}

// splitFields splits a line on whitespace, commas and semicolons.
func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		switch r {
		case ' ', '\t', ',', ';', '\r':
			return true
		}
		return false
	})
}

func parseNode(field string) (int32, error) {
	v, err := strconv.ParseInt(field, 10, 32)
	if err != nil {
		// Some datasets store indices as floats ("3.0").
		f, errF := strconv.ParseFloat(field, 64)
		if errF != nil || f != float64(int32(f)) {
			return 0, errors.Errorf("invalid node index %q", field)
		}
		v = int64(f)
	}
	return int32(v), nil
}

func readEdgeList(r io.Reader) ([]Edge, error) {
	var edges []Edge
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum, headerSeen := 0, false
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitFields(line)
		if len(fields) < 2 {
			return nil, errors.Errorf("line %d: expected at least 2 fields, got %q", lineNum, line)
		}
		u, errU := parseNode(fields[0])
		v, errV := parseNode(fields[1])
		if errU != nil || errV != nil {
			if len(edges) == 0 && !headerSeen {
				headerSeen = true
				klog.V(1).Infof("Skipping edge list header %q", line)
				continue
			}
			return nil, errors.Errorf("line %d: invalid edge %q", lineNum, line)
		}
		edges = append(edges, Edge{u, v})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading edge list")
	}
	return edges, nil
}

func readCSV(r io.Reader, sourceCol, targetCol string) ([]Edge, error) {
	if sourceCol == "" {
		sourceCol = "source"
	}
	if targetCol == "" {
		targetCol = "target"
	}
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "parsing CSV")
	}
	names := df.Names()
	for _, col := range []string{sourceCol, targetCol} {
		if !slices.Contains(names, col) {
			return nil, errors.Errorf("CSV has no column %q, columns are %q", col, names)
		}
	}
	sources, err := df.Col(sourceCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "column %q", sourceCol)
	}
	targets, err := df.Col(targetCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "column %q", targetCol)
	}
	edges := make([]Edge, len(sources))
	for ii := range sources {
		edges[ii] = E(sources[ii], targets[ii])
	}
	return edges, nil
}

func readEdgeIndex(r io.Reader) ([]Edge, error) {
	var rows [][]int32
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitFields(strings.Trim(line, "[]"))
		row := make([]int32, len(fields))
		for ii, field := range fields {
			v, err := parseNode(strings.Trim(field, "[]"))
			if err != nil {
				return nil, errors.WithMessagef(err, "edge index row %d, position %d", len(rows), ii)
			}
			row[ii] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading edge index")
	}
	if len(rows) != 2 {
		return nil, errors.Errorf("edge index must have exactly 2 rows (sources and targets), got %d", len(rows))
	}
	if len(rows[0]) != len(rows[1]) {
		return nil, errors.Errorf("edge index rows have different lengths: %d sources, %d targets",
			len(rows[0]), len(rows[1]))
	}
	edges := make([]Edge, len(rows[0]))
	for ii := range edges {
		edges[ii] = Edge{rows[0][ii], rows[1][ii]}
	}
	return edges, nil
}

// readAdjacency returns the edges of a dense matrix and its size: max(rows, columns).
func readAdjacency(r io.Reader) (edges []Edge, size int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	row := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitFields(line)
		size = max(size, len(fields))
		for col, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, 0, errors.Errorf("adjacency row %d, column %d: invalid value %q", row, col, field)
			}
			if v != 0 {
				edges = append(edges, E(row, col))
			}
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "reading adjacency matrix")
	}
	size = max(size, row)
	return edges, size, nil
}
