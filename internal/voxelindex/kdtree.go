// Package voxelindex provides fast nearest-voxel lookups over the
// reconstruction grid's in-mask voxels, adapted from the teacher's
// Point3D/Points3D kdtree.Interface implementation in
// pkg/interpolation/kriging.go (there used for nearest-observation lookup
// during kriging; here used for nearest-in-mask-voxel fallback when a
// direct grid lookup lands on a padding voxel, e.g. near the mask
// boundary during registration sampling).
package voxelindex

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"svrecon/internal/model"
)

// VoxelPoint is one in-mask voxel centre in world space, implementing
// kdtree.Comparable the way the teacher's Point3D does.
type VoxelPoint struct {
	WX, WY, WZ float64
	X, Y, Z    int
}

// Compare implements kdtree.Comparable.
func (p VoxelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(VoxelPoint)
	switch d {
	case 0:
		return p.WX - q.WX
	case 1:
		return p.WY - q.WY
	default:
		return p.WZ - q.WZ
	}
}

// Dims implements kdtree.Comparable: always 3D.
func (p VoxelPoint) Dims() int { return 3 }

// Distance implements kdtree.Comparable: squared Euclidean distance.
func (p VoxelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(VoxelPoint)
	dx, dy, dz := p.WX-q.WX, p.WY-q.WY, p.WZ-q.WZ
	return dx*dx + dy*dy + dz*dz
}

// VoxelPoints implements kdtree.Interface over a slice of VoxelPoint, the
// way the teacher's Points3D does over kriging observations.
type VoxelPoints []VoxelPoint

func (p VoxelPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p VoxelPoints) Len() int                       { return len(p) }
func (p VoxelPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// Pivot implements the kdtree.Interface method.
func (p VoxelPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(planeVoxel{VoxelPoints: p, Dim: d}, kdtree.MedianOfRandoms(planeVoxel{VoxelPoints: p, Dim: d}, 100))
}

// planeVoxel implements sort.Interface and kdtree.SortSlicer for VoxelPoints.
type planeVoxel struct {
	VoxelPoints
	kdtree.Dim
}

func (p planeVoxel) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.VoxelPoints[i].WX < p.VoxelPoints[j].WX
	case 1:
		return p.VoxelPoints[i].WY < p.VoxelPoints[j].WY
	default:
		return p.VoxelPoints[i].WZ < p.VoxelPoints[j].WZ
	}
}

func (p planeVoxel) Slice(start, end int) kdtree.SortSlicer {
	return planeVoxel{VoxelPoints: p.VoxelPoints[start:end], Dim: p.Dim}
}

func (p planeVoxel) Swap(i, j int) {
	p.VoxelPoints[i], p.VoxelPoints[j] = p.VoxelPoints[j], p.VoxelPoints[i]
}

// Index is a kdtree over every in-mask voxel centre of a volume.
type Index struct {
	tree   *kdtree.Tree
	points VoxelPoints
}

// Build constructs the index from the current mask.
func Build(vol *model.Volume, mask *model.Mask) *Index {
	var pts VoxelPoints
	for z := 0; z < vol.NZ; z++ {
		for y := 0; y < vol.NY; y++ {
			for x := 0; x < vol.NX; x++ {
				if mask != nil && mask.At(x, y, z) != 1 {
					continue
				}
				wx, wy, wz := vol.Affine.Apply(float64(x)*vol.DX, float64(y)*vol.DY, float64(z)*vol.DZ)
				pts = append(pts, VoxelPoint{WX: wx, WY: wy, WZ: wz, X: x, Y: y, Z: z})
			}
		}
	}
	idx := &Index{points: pts}
	if len(pts) > 0 {
		idx.tree = kdtree.New(pts, false)
	}
	return idx
}

// Nearest returns the closest indexed in-mask voxel to a world point.
func (idx *Index) Nearest(wx, wy, wz float64) (VoxelPoint, bool) {
	if idx.tree == nil {
		return VoxelPoint{}, false
	}
	query := VoxelPoint{WX: wx, WY: wy, WZ: wz}
	best, _ := idx.tree.Nearest(query)
	if best == nil {
		return VoxelPoint{}, false
	}
	return best.(VoxelPoint), true
}
