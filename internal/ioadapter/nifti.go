package ioadapter

import (
	"fmt"

	"github.com/KyungWonPark/nifti"

	"svrecon/internal/model"
)

// NiftiIO is the default VolumeLoader/VolumeSaver, grounded in
// KyungWonPark-Correlation/cmd/nifti2c1/main.go's use of
// nifti.Nifti1Image.LoadImage and GetAt.
type NiftiIO struct{}

// LoadVolume reads a .nii/.nii.gz file into a model.Volume, carrying over
// the file's sform affine and voxel spacing.
func (NiftiIO) LoadVolume(path string) (*model.Volume, error) {
	var img nifti.Nifti1Image
	if err := img.LoadImage(path, true); err != nil {
		return nil, fmt.Errorf("loading nifti volume %s: %w", path, err)
	}

	hdr := img.Header
	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	dx, dy, dz := float64(hdr.PixDim[1]), float64(hdr.PixDim[2]), float64(hdr.PixDim[3])

	affine := model.Affine{
		float64(hdr.SRowX[0]), float64(hdr.SRowX[1]), float64(hdr.SRowX[2]), float64(hdr.SRowX[3]),
		float64(hdr.SRowY[0]), float64(hdr.SRowY[1]), float64(hdr.SRowY[2]), float64(hdr.SRowY[3]),
		float64(hdr.SRowZ[0]), float64(hdr.SRowZ[1]), float64(hdr.SRowZ[2]), float64(hdr.SRowZ[3]),
	}

	v := &model.Volume{NX: nx, NY: ny, NZ: nz, DX: dx, DY: dy, DZ: dz, Affine: affine}
	v.Data = make([]float64, nx*ny*nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v.Data[(z*ny+y)*nx+x] = float64(img.GetAt(uint32(x), uint32(y), uint32(z), 0))
			}
		}
	}
	return v, nil
}

// SaveVolume writes a model.Volume out as a .nii file, carrying the
// affine transform back into the header's sform rows.
func (NiftiIO) SaveVolume(path string, v *model.Volume) error {
	img := nifti.NewNifti1Image(int16(v.NX), int16(v.NY), int16(v.NZ), 1)
	img.Header.PixDim[1] = float32(v.DX)
	img.Header.PixDim[2] = float32(v.DY)
	img.Header.PixDim[3] = float32(v.DZ)
	img.Header.SRowX = [4]float32{float32(v.Affine[0]), float32(v.Affine[1]), float32(v.Affine[2]), float32(v.Affine[3])}
	img.Header.SRowY = [4]float32{float32(v.Affine[4]), float32(v.Affine[5]), float32(v.Affine[6]), float32(v.Affine[7])}
	img.Header.SRowZ = [4]float32{float32(v.Affine[8]), float32(v.Affine[9]), float32(v.Affine[10]), float32(v.Affine[11])}

	for z := 0; z < v.NZ; z++ {
		for y := 0; y < v.NY; y++ {
			for x := 0; x < v.NX; x++ {
				img.SetAt(uint32(x), uint32(y), uint32(z), 0, float32(v.At(x, y, z)))
			}
		}
	}
	if err := img.SaveImage(path); err != nil {
		return fmt.Errorf("saving nifti volume %s: %w", path, err)
	}
	return nil
}
