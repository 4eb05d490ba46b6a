package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/maxot/showrunner/internal/domain"
)

// manifestName is the scenario definition inside a .show bundle
const manifestName = "scenario.yml"

var (
	ErrNoManifest = errors.New("bundle contains no scenario.yml")
	ErrBadPath    = errors.New("bundle entry escapes media directory")
)

// Load reads a scenario either from a plain YAML file or from a .show
// bundle. For bundles the media files are extracted next to the bundle under
// <name>.media/ and the scenario's media paths are rewritten to point there.
func Load(path string) (*domain.Scenario, error) {
	if strings.EqualFold(filepath.Ext(path), ".show") {
		mediaDir := strings.TrimSuffix(path, filepath.Ext(path)) + ".media"
		return LoadBundle(path, mediaDir)
	}
	return LoadFile(path)
}

// LoadFile reads and validates a plain YAML scenario
func LoadFile(path string) (*domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML
func Parse(data []byte) (*domain.Scenario, error) {
	var sc domain.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadBundle opens a .show bundle, extracts its media files into mediaDir
// and returns the contained scenario with media paths rewritten
func LoadBundle(path, mediaDir string) (*domain.Scenario, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer r.Close()

	var sc *domain.Scenario
	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		switch {
		case name == manifestName:
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open manifest: %w", err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read manifest: %w", err)
			}
			sc, err = Parse(data)
			if err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "media/"):
			if f.FileInfo().IsDir() {
				continue
			}
			if err := extractMedia(f, mediaDir); err != nil {
				return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
			}
		}
	}
	if sc == nil {
		return nil, ErrNoManifest
	}
	rewriteMediaPaths(sc, mediaDir)
	return sc, nil
}

func extractMedia(f *zip.File, mediaDir string) error {
	rel := strings.TrimPrefix(f.Name, "media/")
	dst := filepath.Join(mediaDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(dst, filepath.Clean(mediaDir)+string(os.PathSeparator)) {
		return ErrBadPath
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// rewriteMediaPaths points every relative media reference at the extraction dir
func rewriteMediaPaths(sc *domain.Scenario, mediaDir string) {
	fix := func(m *domain.MediaAsset) {
		if m == nil || m.Path == "" || filepath.IsAbs(m.Path) {
			return
		}
		m.Path = filepath.Join(mediaDir, filepath.FromSlash(strings.TrimPrefix(m.Path, "media/")))
	}
	for i := range sc.Stages {
		fix(sc.Stages[i].Media)
	}
	for i := range sc.Rounds {
		for j := range sc.Rounds[i].Questions {
			fix(sc.Rounds[i].Questions[j].Media)
		}
	}
}

// Validate checks structural invariants of a scenario
func Validate(sc *domain.Scenario) error {
	if sc.Name == "" {
		return errors.New("scenario has no name")
	}
	if len(sc.Stages) == 0 {
		return errors.New("scenario has no stages")
	}
	rounds := make(map[string]bool, len(sc.Rounds))
	for i, r := range sc.Rounds {
		if r.ID == "" {
			return fmt.Errorf("round %d has no id", i)
		}
		if rounds[r.ID] {
			return fmt.Errorf("duplicate round id %q", r.ID)
		}
		rounds[r.ID] = true
		if len(r.Questions) == 0 {
			return fmt.Errorf("round %q has no questions", r.ID)
		}
	}
	for i, st := range sc.Stages {
		switch st.Type {
		case domain.StagePause, domain.StageVote, domain.StageShop:
		case domain.StageMedia:
			if st.Media == nil {
				return fmt.Errorf("stage %d: media stage without media", i)
			}
		case domain.StageRound:
			if st.RoundID != "" && !rounds[st.RoundID] {
				return fmt.Errorf("stage %d: unknown round %q", i, st.RoundID)
			}
		case domain.StageFinish:
			if st.RoundID != "" && !rounds[st.RoundID] {
				return fmt.Errorf("stage %d: unknown finishing round %q", i, st.RoundID)
			}
		default:
			return fmt.Errorf("stage %d: unknown stage type %q", i, st.Type)
		}
	}
	if sc.Shop != nil {
		for i, item := range sc.Shop.Stock {
			if item.Type == "" {
				return fmt.Errorf("shop item %d has no type", i)
			}
			if item.Quantity < 0 {
				return fmt.Errorf("shop item %q has negative quantity", item.Type)
			}
		}
	}
	return nil
}
