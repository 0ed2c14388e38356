package remoteexchange

import (
	"bufio"
	"fmt"
	"os"

	"svrecon/internal/model"
)

// writeDOF writes a plain-text ".dof" file carrying the 6 rigid
// parameters plus the composed 3x4 matrix, matching §6's requirement that
// rigid transforms expose both forms.
func writeDOF(path string, pose model.Pose) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	rp := pose.Rigid
	fmt.Fprintf(w, "tx %.8f\nty %.8f\ntz %.8f\nrx %.8f\nry %.8f\nrz %.8f\n",
		rp.TX, rp.TY, rp.TZ, rp.RX, rp.RY, rp.RZ)

	m := pose.Matrix()
	fmt.Fprintf(w, "matrix %.8f %.8f %.8f %.8f %.8f %.8f %.8f %.8f %.8f %.8f %.8f %.8f\n",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8], m[9], m[10], m[11])
	return nil
}

// readDOF reads back a rigid pose written by writeDOF (or by an external
// registration worker following the same layout).
func readDOF(path string) (model.Pose, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Pose{}, err
	}
	defer f.Close()

	var rp model.RigidParams
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var key string
		var v float64
		line := scanner.Text()
		if _, err := fmt.Sscanf(line, "%s %f", &key, &v); err != nil {
			continue
		}
		switch key {
		case "tx":
			rp.TX = v
		case "ty":
			rp.TY = v
		case "tz":
			rp.TZ = v
		case "rx":
			rp.RX = v
		case "ry":
			rp.RY = v
		case "rz":
			rp.RZ = v
		}
	}
	return model.Pose{Kind: model.PoseRigid, Rigid: rp}, nil
}
