// Package report writes the diagnostic per-slice CSV named in
// SPEC_FULL.md §6, grounded in
// KyungWonPark-Correlation/internal/io/csv.go's manual fmt.Fprintf row
// writer (that file writes matrices, not structs, via direct Fprintf calls
// rather than encoding/csv despite its name — this package keeps that same
// direct-Fprintf idiom for the per-slice report).
package report

import (
	"fmt"
	"os"

	"svrecon/internal/model"
)

// WriteSliceReport writes one row per record: stack index, slice index,
// rotation/translation parameters, slice weight, inside flag, and scale.
func WriteSliceReport(path string, records []*model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating slice report %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "stack,slice,tx,ty,tz,rx,ry,rz,weight,inside,scale\n"); err != nil {
		return err
	}

	for i, r := range records {
		rot := r.Pose.Rigid
		if _, err := fmt.Fprintf(f, "%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%t,%.6f\n",
			r.StackIndex, i, rot.TX, rot.TY, rot.TZ, rot.RX, rot.RY, rot.RZ,
			r.SliceWeight, r.Inside, r.Scale); err != nil {
			return fmt.Errorf("writing slice report row %d: %w", i, err)
		}
	}
	return nil
}
