package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/maxot/showrunner/internal/domain"
)

const validYAML = `
name: test show
stages:
  - type: media
    media:
      path: media/intro.mp4
      kind: video
  - type: round
    round_id: warmup
  - type: vote
  - type: round
  - type: shop
  - type: finish
    round_id: finale
rounds:
  - id: warmup
    title: Warmup
    class: base
    points: 10
    questions:
      - id: q1
        text: "What year is it?"
        answer: "2026"
  - id: finale
    title: Finale
    class: speed
    points: 50
    questions:
      - id: q2
        text: "Capital of France?"
        answer: "Paris"
        media:
          path: media/paris.jpg
          kind: image
shop:
  stock:
    - type: double
      title: Double points
      price: 40
      quantity: 3
`

func TestParseValidScenario(t *testing.T) {
	sc, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sc.Name != "test show" {
		t.Errorf("name = %q", sc.Name)
	}
	if len(sc.Stages) != 6 {
		t.Errorf("stages = %d, want 6", len(sc.Stages))
	}
	r := sc.RoundByID("finale")
	if r == nil {
		t.Fatal("finale round not found")
	}
	if r.Class != domain.RoundSpeed {
		t.Errorf("finale class = %q", r.Class)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Scenario)
		want   string
	}{
		{
			name:   "no name",
			mutate: func(sc *domain.Scenario) { sc.Name = "" },
			want:   "no name",
		},
		{
			name:   "no stages",
			mutate: func(sc *domain.Scenario) { sc.Stages = nil },
			want:   "no stages",
		},
		{
			name: "dangling round reference",
			mutate: func(sc *domain.Scenario) {
				sc.Stages[1].RoundID = "missing"
			},
			want: "unknown round",
		},
		{
			name: "media stage without media",
			mutate: func(sc *domain.Scenario) {
				sc.Stages[0].Media = nil
			},
			want: "without media",
		},
		{
			name: "duplicate round id",
			mutate: func(sc *domain.Scenario) {
				sc.Rounds = append(sc.Rounds, sc.Rounds[0])
			},
			want: "duplicate round id",
		},
		{
			name: "round without questions",
			mutate: func(sc *domain.Scenario) {
				sc.Rounds[0].Questions = nil
			},
			want: "no questions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Parse([]byte(validYAML))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(sc)
			err = Validate(sc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func writeBundle(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "show.show")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(out)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, map[string]string{
		"scenario.yml":    validYAML,
		"media/intro.mp4": "not really video",
		"media/paris.jpg": "not really jpeg",
	})

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	mediaDir := filepath.Join(dir, "show.media")
	if _, err := os.Stat(filepath.Join(mediaDir, "intro.mp4")); err != nil {
		t.Fatalf("intro.mp4 not extracted: %v", err)
	}

	if got := sc.Stages[0].Media.Path; got != filepath.Join(mediaDir, "intro.mp4") {
		t.Errorf("stage media path = %q", got)
	}
	if got := sc.Rounds[1].Questions[0].Media.Path; got != filepath.Join(mediaDir, "paris.jpg") {
		t.Errorf("question media path = %q", got)
	}
}

func TestLoadBundleWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, map[string]string{
		"media/intro.mp4": "x",
	})
	if _, err := Load(path); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("expected ErrNoManifest, got %v", err)
	}
}

func TestLoadPlainYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "show.yml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != "test show" {
		t.Errorf("name = %q", sc.Name)
	}
}
