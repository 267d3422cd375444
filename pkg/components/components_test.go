package components

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roikit/internal/models"
)

func set(m *models.Mask, pts ...[3]int) {
	for _, p := range pts {
		m.Data[m.Shape.Index(p[0], p[1], p[2])] = true
	}
}

func fill(m *models.Mask, box models.BoundingBox) {
	for z := box[0].Start; z < box[0].Stop; z++ {
		for y := box[1].Start; y < box[1].Stop; y++ {
			for x := box[2].Start; x < box[2].Stop; x++ {
				set(m, [3]int{z, y, x})
			}
		}
	}
}

func randomMask(rng *rand.Rand, shape models.Shape, density float64) *models.Mask {
	m := models.NewMask(shape)
	for i := range m.Data {
		m.Data[i] = rng.Float64() < density
	}
	return m
}

func TestConnectivity(t *testing.T) {
	// an in-plane diagonal pair shares an edge, a body diagonal only a corner
	tests := []struct {
		conn   Connectivity
		edge   int
		corner int
	}{
		{Face, 2, 2},
		{Edge, 1, 2},
		{Vertex, 1, 1},
	}
	shape := models.Shape{3, 3, 3}

	for _, tt := range tests {
		edge := models.NewMask(shape)
		set(edge, [3]int{0, 0, 0}, [3]int{0, 1, 1})
		corner := models.NewMask(shape)
		set(corner, [3]int{0, 0, 0}, [3]int{1, 1, 1})

		assert.Equal(t, tt.edge, Label(edge, tt.conn).Count(), "edge pair, connectivity %d", tt.conn)
		assert.Equal(t, tt.corner, Label(corner, tt.conn).Count(), "corner pair, connectivity %d", tt.conn)
	}

	assert.Len(t, Face.offsets(), 6)
	assert.Len(t, Edge.offsets(), 18)
	assert.Len(t, Vertex.offsets(), 26)
	assert.NoError(t, Edge.Validate())
	assert.Error(t, Connectivity(8).Validate())
}

func TestLabelSizes(t *testing.T) {
	shape := models.Shape{10, 10, 10}
	m := models.NewMask(shape)
	fill(m, models.BoundingBox{{Start: 0, Stop: 2}, {Start: 0, Stop: 2}, {Start: 0, Stop: 2}})
	fill(m, models.BoundingBox{{Start: 5, Stop: 8}, {Start: 5, Stop: 8}, {Start: 5, Stop: 8}})
	set(m, [3]int{9, 0, 9})

	l := Label(m, DefaultConnectivity)
	require.Equal(t, 3, l.Count())
	assert.Equal(t, []int{0, 8, 27, 1}, l.Sizes)
	assert.Equal(t, int32(1), l.Labels[shape.Index(1, 1, 1)])
	assert.Equal(t, int32(2), l.Labels[shape.Index(7, 5, 6)])
	assert.Equal(t, int32(0), l.Labels[shape.Index(4, 4, 4)])
}

func TestRemoveSmall(t *testing.T) {
	shape := models.Shape{10, 10, 10}
	m := models.NewMask(shape)
	fill(m, models.BoundingBox{{Start: 0, Stop: 2}, {Start: 0, Stop: 2}, {Start: 0, Stop: 2}})
	fill(m, models.BoundingBox{{Start: 5, Stop: 8}, {Start: 5, Stop: 8}, {Start: 5, Stop: 8}})
	set(m, [3]int{9, 0, 9})

	out, st := RemoveSmall(m, 8, DefaultConnectivity)
	assert.Equal(t, 35, out.Count())
	assert.False(t, out.Data[shape.Index(9, 0, 9)])
	assert.Equal(t, Stats{
		Components:    3,
		Kept:          2,
		Removed:       1,
		VoxelsRemoved: 1,
		Largest:       27,
		MeanSize:      12,
	}, st)

	// the input is left untouched
	assert.Equal(t, 36, m.Count())
}

func TestRemoveSmallEmpty(t *testing.T) {
	m := models.NewMask(models.Shape{4, 4, 4})
	out, st := RemoveSmall(m, 100, DefaultConnectivity)
	assert.Equal(t, 0, out.Count())
	assert.Equal(t, Stats{}, st)
}

func TestRemoveUnanchored(t *testing.T) {
	shape := models.Shape{10, 10, 10}
	region := models.NewMask(shape)
	fill(region, models.BoundingBox{{Start: 0, Stop: 3}, {Start: 0, Stop: 3}, {Start: 0, Stop: 3}})
	fill(region, models.BoundingBox{{Start: 6, Stop: 9}, {Start: 6, Stop: 9}, {Start: 6, Stop: 9}})
	set(region, [3]int{9, 0, 9})

	anchor := models.NewMask(shape)
	fill(anchor, models.BoundingBox{{Start: 0, Stop: 1}, {Start: 0, Stop: 1}, {Start: 0, Stop: 5}})
	set(anchor, [3]int{7, 7, 7})

	out, st := RemoveUnanchored(region, anchor, 2, DefaultConnectivity)
	assert.Equal(t, 27, out.Count())
	assert.True(t, out.Data[shape.Index(2, 2, 2)], "region voxels outside the anchor stay with their component")
	assert.False(t, out.Data[shape.Index(7, 7, 7)])
	assert.Equal(t, Stats{
		Components:    3,
		Kept:          1,
		Removed:       2,
		VoxelsRemoved: 1,
		Largest:       3,
		MeanSize:      4.0 / 3,
	}, st)

	// a zero threshold still requires one anchor voxel
	out, _ = RemoveUnanchored(region, anchor, 0, DefaultConnectivity)
	assert.Equal(t, 54, out.Count())
	assert.False(t, out.Data[shape.Index(9, 0, 9)])
}

func TestRemoveSmallProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	shape := models.Shape{12, 14, 16}

	for trial := 0; trial < 20; trial++ {
		m := randomMask(rng, shape, 0.25)
		minVoxels := 1 + rng.Intn(30)
		conn := []Connectivity{Face, Edge, Vertex}[trial%3]

		out, _ := RemoveSmall(m, minVoxels, conn)

		before := Label(m, conn)
		for lab := 1; lab <= before.Count(); lab++ {
			kept := 0
			for i, l := range before.Labels {
				if l == int32(lab) && out.Data[i] {
					kept++
				}
			}
			if kept != 0 && kept != before.Sizes[lab] {
				t.Fatalf("component %d partially removed: %d of %d voxels kept", lab, kept, before.Sizes[lab])
			}
			if kept != 0 && kept < minVoxels {
				t.Fatalf("component %d of %d voxels survived threshold %d", lab, kept, minVoxels)
			}
			if kept == 0 && before.Sizes[lab] >= minVoxels {
				t.Fatalf("component %d of %d voxels removed at threshold %d", lab, before.Sizes[lab], minVoxels)
			}
		}
		for i, v := range out.Data {
			if v && !m.Data[i] {
				t.Fatal("RemoveSmall added a voxel")
			}
		}
	}
}

func TestDilate(t *testing.T) {
	shape := models.Shape{9, 9, 9}
	m := models.NewMask(shape)
	set(m, [3]int{4, 4, 4})

	out := Dilate(m, 2)
	assert.Equal(t, 125, out.Count())
	assert.True(t, out.Data[shape.Index(2, 6, 2)])
	assert.False(t, out.Data[shape.Index(1, 4, 4)])

	// clipped at the border
	edge := models.NewMask(shape)
	set(edge, [3]int{0, 0, 0})
	assert.Equal(t, 8, Dilate(edge, 1).Count())

	assert.Equal(t, 1, Dilate(m, 0).Count())
}

func TestDilateMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shape := models.Shape{7, 8, 9}
	m := randomMask(rng, shape, 0.02)
	radius := 2

	got := Dilate(m, radius)
	for i := range got.Data {
		z, y, x := shape.Coords(i)
		want := false
		for j, v := range m.Data {
			if !v {
				continue
			}
			zz, yy, xx := shape.Coords(j)
			if abs(zz-z) <= radius && abs(yy-y) <= radius && abs(xx-x) <= radius {
				want = true
				break
			}
		}
		if got.Data[i] != want {
			t.Fatalf("voxel (%d,%d,%d): expected %v, got %v", z, y, x, want, got.Data[i])
		}
	}
}

func TestOverlapAndSelect(t *testing.T) {
	shape := models.Shape{4, 4, 4}
	m := models.NewMask(shape)
	fill(m, models.BoundingBox{{Start: 0, Stop: 1}, {Start: 0, Stop: 4}, {Start: 0, Stop: 1}})
	set(m, [3]int{3, 3, 3})

	ref := models.NewMask(shape)
	set(ref, [3]int{0, 0, 0}, [3]int{3, 3, 3})

	l := Label(m, Face)
	assert.Equal(t, []int{0, 1, 1}, l.Overlap(ref))

	sel := l.Select(func(label int32) bool { return label == 1 })
	assert.Equal(t, 4, sel.Count())
}
