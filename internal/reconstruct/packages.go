package reconstruct

import (
	"svrecon/internal/model"
	"svrecon/internal/registration"
)

// runPackageSeeding performs one round of package-to-volume registration,
// grounded in the original's splitPackages/package-to-volume scheme
// (original_source/src/Reconstruction.cc): each stack's slices are grouped
// into StackMetas[stack].Packages interleaved packages by acquisition
// order, the first slice of each package (in temporal order) is registered
// against the volume as a stand-in for the whole package, and its resulting
// pose seeds the initial guess for every other slice in that package before
// the main per-slice rigid registration refines them individually. A
// Packages count of 0 or 1 leaves a stack's slices unseeded.
func (c *Context) runPackageSeeding() {
	if len(c.StackMetas) == 0 {
		return
	}
	for _, idxs := range c.packageGroups() {
		if len(idxs) < 2 {
			continue
		}
		rep := c.Records[idxs[0]]
		registration.RunRigid([]*model.Record{rep}, c.Volume, c.Sampler, 1)
		for _, idx := range idxs[1:] {
			c.Records[idx].Pose = rep.Pose
		}
	}
}

// packageGroups buckets record indices by (stack, package), package
// membership assigned round-robin over each slice's temporal acquisition
// position (SliceOrder[SliceIndex] when given, else SliceIndex itself)
// modulo that stack's package count, matching the original's
// current_package++/wrap-at-n_packages assignment. Each returned group is
// sorted by temporal position so index 0 is always the package's first
// acquired slice.
func (c *Context) packageGroups() [][]int {
	type key struct {
		stack, pkg int
	}
	groups := map[key][]int{}
	temporalOf := map[key][]int{}

	for i, r := range c.Records {
		if r.StackIndex < 0 || r.StackIndex >= len(c.StackMetas) {
			continue
		}
		meta := c.StackMetas[r.StackIndex]
		if meta.Packages <= 1 {
			continue
		}
		temporal := r.SliceIndex
		if r.SliceIndex >= 0 && r.SliceIndex < len(meta.SliceOrder) {
			temporal = meta.SliceOrder[r.SliceIndex]
		}
		pkg := temporal % meta.Packages
		if pkg < 0 {
			pkg += meta.Packages
		}
		k := key{r.StackIndex, pkg}
		groups[k] = append(groups[k], i)
		temporalOf[k] = append(temporalOf[k], temporal)
	}

	out := make([][]int, 0, len(groups))
	for k, idxs := range groups {
		temporals := temporalOf[k]
		sortByTemporal(idxs, temporals)
		out = append(out, idxs)
	}
	return out
}

// sortByTemporal sorts idxs in place by their parallel temporal value
// (insertion sort: package groups are small, typically a handful of
// interleaved slices).
func sortByTemporal(idxs, temporals []int) {
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && temporals[j-1] > temporals[j]; j-- {
			idxs[j-1], idxs[j] = idxs[j], idxs[j-1]
			temporals[j-1], temporals[j] = temporals[j], temporals[j-1]
		}
	}
}
