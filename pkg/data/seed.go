package data

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/chazu/filament/pkg/geom"
)

// ComputeSeed derives a deterministic, non-zero seed from a position and
// an offset, so equal inputs always produce equal seeds.
func ComputeSeed(p geom.Vec, offset int) int32 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(p.Z))
	binary.LittleEndian.PutUint64(buf[24:], uint64(int64(offset)))
	h := xxhash.Sum64(buf[:])
	s := int32(h ^ (h >> 32))
	if s == 0 {
		s = 1
	}
	return s
}

// RandomizeSeed replaces pt's seed with one derived from its position.
func RandomizeSeed(pt *Point) {
	pt.Seed = ComputeSeed(pt.Position, 0)
}
