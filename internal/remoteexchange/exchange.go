// Package remoteexchange implements the persisted-state file-exchange
// protocol of SPEC_FULL.md §6: a shared directory holding the current
// reconstruction/mask and per-slice request/response files that an
// external registration worker polls. No locking protocol is specified;
// callers are responsible for exclusive use of the exchange directory.
package remoteexchange

import (
	"fmt"
	"os"
	"path/filepath"

	"svrecon/internal/ioadapter"
	"svrecon/internal/model"
)

// Stride bounds the number of on-disk files written per wave, matching
// the remote-registration stride of 32 from SPEC_FULL.md §5.
const Stride = 32

// Exchange drives one file-exchange directory.
type Exchange struct {
	Dir string
	IO  ioadapter.NiftiIO
}

// NewExchange returns an Exchange rooted at dir, creating it if necessary.
func NewExchange(dir string) (*Exchange, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating exchange dir %s: %w", dir, err)
	}
	return &Exchange{Dir: dir}, nil
}

// PublishVolume writes the current reconstruction and mask so external
// workers can read them.
func (e *Exchange) PublishVolume(vol *model.Volume, mask *model.Mask) error {
	if err := e.IO.SaveVolume(filepath.Join(e.Dir, "current-source.nii.gz"), vol); err != nil {
		return err
	}
	maskVol := &model.Volume{NX: mask.NX, NY: mask.NY, NZ: mask.NZ, DX: vol.DX, DY: vol.DY, DZ: vol.DZ, Affine: vol.Affine}
	maskVol.Data = make([]float64, len(mask.Data))
	for i, b := range mask.Data {
		maskVol.Data[i] = float64(b)
	}
	return e.IO.SaveVolume(filepath.Join(e.Dir, "current-mask.nii.gz"), maskVol)
}

// PublishSlice writes one slice's request files, named according to pose
// kind (rigid uses res-slice/res-transformation, FFD uses
// slice/transformation), matching §6's persisted-state layout.
func (e *Exchange) PublishSlice(index int, r *model.Record) error {
	var imgName, dofName string
	if r.Pose.Kind == model.PoseFFD {
		imgName = fmt.Sprintf("slice-%d.nii.gz", index)
		dofName = fmt.Sprintf("transformation-%d.dof", index)
	} else {
		imgName = fmt.Sprintf("res-slice-%d.nii.gz", index)
		dofName = fmt.Sprintf("res-transformation-%d.dof", index)
	}

	sliceVol := sliceToVolume(r.Slice)
	if err := e.IO.SaveVolume(filepath.Join(e.Dir, imgName), sliceVol); err != nil {
		return err
	}
	return writeDOF(filepath.Join(e.Dir, dofName), r.Pose)
}

// PublishStride publishes records[offset : offset+Stride] (clamped),
// bounding the on-disk file count per wave.
func (e *Exchange) PublishStride(records []*model.Record, offset int) (int, error) {
	end := offset + Stride
	if end > len(records) {
		end = len(records)
	}
	for i := offset; i < end; i++ {
		if err := e.PublishSlice(i, records[i]); err != nil {
			return offset, err
		}
	}
	return end, nil
}

// ReadBack loads a completed registration result written by the external
// worker; a missing output file is treated as fatal, per §7.
func (e *Exchange) ReadBack(index int, r *model.Record) error {
	var dofName string
	if r.Pose.Kind == model.PoseFFD {
		dofName = fmt.Sprintf("transformation-%d.dof", index)
	} else {
		dofName = fmt.Sprintf("res-transformation-%d.dof", index)
	}
	path := filepath.Join(e.Dir, dofName)
	pose, err := readDOF(path)
	if err != nil {
		return fmt.Errorf("reading back registration result for slice %d: %w", index, err)
	}
	r.Pose = pose
	return nil
}

func sliceToVolume(s *model.Slice) *model.Volume {
	v := &model.Volume{NX: s.Width, NY: s.Height, NZ: 1, DX: s.DX, DY: s.DY, DZ: s.Thickness, Affine: s.Affine}
	v.Data = append([]float64(nil), s.Data...)
	return v
}
