// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints implements checkpoint management: saving and loading snapshots of a model's state.
//
// The main object is the Handler, that should be created by calling Build, followed by the
// various options setting and finally calling Config.Done.
// Checkpoints can be kept in memory (the default) or saved to a directory, where each checkpoint
// is a pair of files: `<base>.bin` with the opaque model state and `<base>.json` with its metadata.
//
// Example: early stopping saves a checkpoint whenever the validation metric improves, and
// restores the latest (best) one at the end of training:
//
//	var handler *checkpoints.Handler
//	if *flagCheckpoint != "" {
//		handler = must.M1(checkpoints.Build().Dir(*flagCheckpoint).Keep(*flagCheckpointKeep).Done())
//	} else {
//		handler = must.M1(checkpoints.Build().InMemory().Done())
//	}
//	…
//	state, err := model.SaveState()
//	…
//	err = handler.Save(checkpoints.Checkpoint{Epoch: epoch, Score: valAUC, State: state})
//	…
//	best, err := handler.Latest()
//	…
//	err = model.LoadState(best.State)
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/linkpred/ml/data"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// DirPermMode is the default directory creation permission (before umask) used.
	DirPermMode = os.FileMode(0770)

	// ErrNoCheckpoint is returned by Handler.Latest if nothing was saved yet.
	ErrNoCheckpoint = errors.New("no checkpoint saved")
)

// Checkpoint is one snapshot of a model.
type Checkpoint struct {
	// Epoch when the checkpoint was taken. Negative for the initial state, before training.
	Epoch int

	// Score of the monitored quantity (loss or validation metric) at the time of the checkpoint.
	Score float64

	// Monitor is the name of the quantity in Score.
	Monitor string

	// Time when the checkpoint was saved.
	Time time.Time

	// State is the opaque model state, as returned by the model.
	State []byte
}

// IsInitial returns whether this is the checkpoint of the model before training.
func (c Checkpoint) IsInitial() bool { return c.Epoch < 0 }

// Config for the checkpoints Handler to be created. This is created with Build() and
// configured with the various methods. Once finished, call Done() and it will output
// a checkpoints.Handler.
type Config struct {
	err  error
	dir  string
	keep int
}

// Build a configuration for building a checkpoints.Handler. After configuring the
// Config object returned, call `Done` to get the configured checkpoints.Handler.
//
// By default, checkpoints are kept in memory and only the last one is kept.
func Build() *Config {
	return &Config{keep: 1}
}

func (c *Config) setError(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Dir sets the directory where to save / load the checkpoints. It is created if it doesn't exist.
func (c *Config) Dir(dir string) *Config {
	dir = data.ReplaceTildeInDir(dir)
	c.dir = dir
	fi, err := os.Stat(dir)
	if err != nil && !os.IsNotExist(err) {
		c.setError(errors.Wrapf(err, "failed to os.Stat(%q)", dir))
		return c
	}
	if err == nil && !fi.IsDir() {
		c.setError(errors.Errorf("directory name %q exists but it's a normal file, not a directory", dir))
		return c
	}
	if err == nil {
		return c
	}
	err = os.MkdirAll(dir, DirPermMode)
	if err != nil {
		c.setError(errors.Wrapf(err, "trying to create dir %q", dir))
	}
	return c
}

// DirFromBase sets the directory where to save / load the checkpoints.
// If `dir` is not an absolute path, assumes it is a subdirectory of baseDir.
func (c *Config) DirFromBase(dir, baseDir string) *Config {
	dir = data.ReplaceTildeInDir(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(data.ReplaceTildeInDir(baseDir), dir)
	}
	return c.Dir(dir)
}

// InMemory keeps the checkpoints in memory only. This is the default.
func (c *Config) InMemory() *Config {
	c.dir = ""
	return c
}

// Keep configures the number of checkpoints to keep. If set to -1, it will never erase older checkpoints.
// The default is 1.
func (c *Config) Keep(n int) *Config {
	c.keep = n
	return c
}

// Done creates a Handler with the current configuration. It returns an error if
// the configuration is invalid.
func (c *Config) Done() (*Handler, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.keep == 0 {
		return nil, errors.New("checkpoints Keep(0) would discard every checkpoint, use Keep(-1) to keep all")
	}
	h := &Handler{config: c}
	if c.dir != "" {
		list, err := h.ListCheckpoints()
		if err != nil {
			return nil, err
		}
		h.checkpointsCount = maxCheckPointCountFromCheckpoints(list) + 1
	}
	return h, nil
}

// MustDone constructs the checkpoints.Handler. It panics if there was an error.
func (c *Config) MustDone() *Handler {
	h, err := c.Done()
	if err != nil {
		panic(errors.WithMessage(err, "Failed to create checkpoints.Handler"))
	}
	return h
}

// Handler saves and loads checkpoints. See example in package documentation.
//
// It is not safe for concurrent use.
type Handler struct {
	config           *Config
	checkpointsCount int

	// memory holds the checkpoints of in-memory handlers, older first.
	memory []namedCheckpoint
}

type namedCheckpoint struct {
	baseName string
	Checkpoint
}

// metadata is the JSON representation of a Checkpoint, without the State.
type metadata struct {
	Epoch   int    `json:"epoch"`
	Score   string `json:"score"` // Formatted, since JSON has no NaN or Inf.
	Monitor string `json:"monitor,omitempty"`
	Time    string `json:"time"`
	Bytes   int    `json:"bytes"`
}

// String implements Stringer.
func (h *Handler) String() string {
	if h.config.dir == "" {
		return "checkpoints.Handler(in-memory)"
	}
	return fmt.Sprintf("checkpoints.Handler(%q)", h.config.dir)
}

// Dir returns the directory the Handler is configured to, or "" if checkpoints are kept in memory.
// It returns "" (empty) if the Handler is `nil`.
func (h *Handler) Dir() string {
	if h == nil {
		return ""
	}
	return h.config.dir
}

// newCheckpointBaseName returns the base name for the checkpoint files.
func (h *Handler) newCheckpointBaseName(epoch int) string {
	baseName := fmt.Sprintf("%sn%07d", baseNamePrefix, h.checkpointsCount)
	if epoch < 0 {
		return baseName + "-initial"
	}
	return fmt.Sprintf("%s-epoch-%05d", baseName, epoch)
}

const (
	baseNamePrefix = "checkpoint-"
	jsonNameSuffix = ".json"
	varDataSuffix  = ".bin"
	timeLayout     = time.RFC3339Nano
)

// ListCheckpoints returns the base name of the checkpoints in save order (older first).
func (h *Handler) ListCheckpoints() (checkpoints []string, err error) {
	if h.config.dir == "" {
		for _, c := range h.memory {
			checkpoints = append(checkpoints, c.baseName)
		}
		return checkpoints, nil
	}
	entries, err := os.ReadDir(h.config.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "%s listing checkpoints", h)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, baseNamePrefix) || !strings.HasSuffix(fileName, jsonNameSuffix) {
			continue
		}
		checkpoints = append(checkpoints, fileName[:len(fileName)-len(jsonNameSuffix)])
	}
	// The zero-padded counter follows the prefix, so lexicographic order is save order.
	slices.Sort(checkpoints)
	return checkpoints, nil
}

// HasCheckpoints returns whether there are any checkpoints saved.
func (h *Handler) HasCheckpoints() (bool, error) {
	list, err := h.ListCheckpoints()
	return len(list) > 0, err
}

var checkpointCountRegex = regexp.MustCompile(`^checkpoint-n(\d+)-`)

// maxCheckPointCountFromCheckpoints returns the largest `checkpointCount` in the saved
// checkpoints -- so the next checkpoint saved uses this count+1.
func maxCheckPointCountFromCheckpoints(checkpoints []string) int {
	maxID := -1
	for _, name := range checkpoints {
		matches := checkpointCountRegex.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		maxID = max(maxID, id)
	}
	return maxID
}

// Save a new checkpoint. The State is copied. If Time is not set, it's set to now.
// Older checkpoints beyond the configured Keep are removed.
func (h *Handler) Save(ckpt Checkpoint) error {
	if ckpt.Time.IsZero() {
		ckpt.Time = time.Now()
	}
	ckpt.State = slices.Clone(ckpt.State)
	baseName := h.newCheckpointBaseName(ckpt.Epoch)
	h.checkpointsCount++

	if h.config.dir == "" {
		h.memory = append(h.memory, namedCheckpoint{baseName: baseName, Checkpoint: ckpt})
		if keep := h.config.keep; keep > 0 && len(h.memory) > keep {
			h.memory = slices.Delete(h.memory, 0, len(h.memory)-keep)
		}
		return nil
	}

	varFileName := filepath.Join(h.config.dir, baseName+varDataSuffix)
	if err := os.WriteFile(varFileName, ckpt.State, 0o660); err != nil {
		return errors.Wrapf(err, "%s: failed to write checkpoint data file %s", h, varFileName)
	}
	meta := metadata{
		Epoch:   ckpt.Epoch,
		Score:   strconv.FormatFloat(ckpt.Score, 'g', -1, 64),
		Monitor: ckpt.Monitor,
		Time:    ckpt.Time.Format(timeLayout),
		Bytes:   len(ckpt.State),
	}
	jsonData, err := json.MarshalIndent(&meta, "", "\t")
	if err != nil {
		return errors.Wrapf(err, "%s: failed to encode checkpoint metadata", h)
	}
	// The metadata is written last: a checkpoint is only listed once it's complete.
	jsonFileName := filepath.Join(h.config.dir, baseName+jsonNameSuffix)
	if err := os.WriteFile(jsonFileName, jsonData, 0o660); err != nil {
		return errors.Wrapf(err, "%s: failed to write checkpoint metadata file %s", h, jsonFileName)
	}
	klog.V(2).Infof("%s: saved %s (%d bytes)", h, baseName, len(ckpt.State))
	return h.keepNCheckpoints()
}

// Latest returns the most recently saved checkpoint, or ErrNoCheckpoint.
func (h *Handler) Latest() (Checkpoint, error) {
	list, err := h.ListCheckpoints()
	if err != nil {
		return Checkpoint{}, err
	}
	if len(list) == 0 {
		return Checkpoint{}, errors.WithMessagef(ErrNoCheckpoint, "%s", h)
	}
	return h.Load(list[len(list)-1])
}

// Load the checkpoint with the given base name, as returned by ListCheckpoints.
func (h *Handler) Load(baseName string) (Checkpoint, error) {
	if h.config.dir == "" {
		for _, c := range h.memory {
			if c.baseName == baseName {
				ckpt := c.Checkpoint
				ckpt.State = slices.Clone(ckpt.State)
				return ckpt, nil
			}
		}
		return Checkpoint{}, errors.Errorf("%s: checkpoint %q not found", h, baseName)
	}

	jsonFileName := filepath.Join(h.config.dir, baseName+jsonNameSuffix)
	jsonData, err := os.ReadFile(jsonFileName)
	if err != nil {
		return Checkpoint{}, errors.Wrapf(err, "%s: failed to read checkpoint metadata", h)
	}
	var meta metadata
	if err := json.Unmarshal(jsonData, &meta); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "%s: failed to parse checkpoint metadata %s", h, jsonFileName)
	}
	ckpt := Checkpoint{Epoch: meta.Epoch, Monitor: meta.Monitor}
	if ckpt.Score, err = strconv.ParseFloat(meta.Score, 64); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "%s: invalid score in %s", h, jsonFileName)
	}
	if ckpt.Time, err = time.Parse(timeLayout, meta.Time); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "%s: invalid time in %s", h, jsonFileName)
	}
	varFileName := filepath.Join(h.config.dir, baseName+varDataSuffix)
	if ckpt.State, err = os.ReadFile(varFileName); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "%s: failed to read checkpoint data", h)
	}
	if len(ckpt.State) != meta.Bytes {
		return Checkpoint{}, errors.Errorf("%s: checkpoint %s has %d bytes, metadata says %d",
			h, varFileName, len(ckpt.State), meta.Bytes)
	}
	return ckpt, nil
}

// keepNCheckpoints checks if there are more than the configured number of checkpoints, and remove
// the excess.
func (h *Handler) keepNCheckpoints() error {
	if h.config.keep < 0 {
		return nil
	}
	list, err := h.ListCheckpoints()
	if err != nil {
		return errors.WithMessagef(err, "%s failed to list saved checkpoints", h)
	}
	if len(list) <= h.config.keep {
		return nil
	}

	// Remove the excess checkpoints, starting from the earlier ones.
	for _, baseName := range list[:len(list)-h.config.keep] {
		// Metadata first, so a partially removed checkpoint is never listed.
		for _, suffix := range []string{jsonNameSuffix, varDataSuffix} {
			fileName := filepath.Join(h.config.dir, baseName+suffix)
			err = os.Remove(fileName)
			if err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "%s failed to remove excess checkpoint file %q", h, fileName)
			}
		}
	}
	return nil
}
