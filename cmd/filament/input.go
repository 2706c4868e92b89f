package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/filament/pkg/data"
	"github.com/chazu/filament/pkg/geom"
	"github.com/chazu/filament/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// PathsFile is the YAML input accepted by --input.
//
//	paths:
//	  - points: [[0, 0, 0], [10, 0, 0]]
//	  - points: [[0, 0, 0], [1, 0, 0], [1, 1, 0]]
//	    closed: true
type PathsFile struct {
	Paths []PathData `yaml:"paths"`
}

// PathData is one polyline.
type PathData struct {
	Points [][3]float64 `yaml:"points"`
	Closed bool         `yaml:"closed"`
}

var errNoPaths = errors.New("input declares no paths")

// readPaths decodes a PathsFile into a collection. Paths keep their file
// order as IO indices.
func readPaths(r io.Reader) (*data.Collection, error) {
	var f PathsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoPaths
		}
		return nil, fmt.Errorf("decode paths: %w", err)
	}
	if len(f.Paths) == 0 {
		return nil, errNoPaths
	}

	c := &data.Collection{}
	for _, p := range f.Paths {
		ps := make([]geom.Vec, len(p.Points))
		for i, xyz := range p.Points {
			ps[i] = geom.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		}
		pio := c.Emplace(data.FromPositions(ps...))
		if p.Closed {
			pio.AddTag(pipeline.TagClosed)
		}
	}
	return c, nil
}

// writeResult encodes res as YAML.
func writeResult(w io.Writer, res BuildResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return enc.Close()
}
