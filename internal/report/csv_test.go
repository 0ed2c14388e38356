package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func TestWriteSliceReportWritesHeaderAndOneRowPerRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.csv")

	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	r0 := model.NewRecord(s, 0)
	r0.SliceWeight = 1
	r0.Inside = true
	r0.Scale = 1.1
	r1 := model.NewRecord(s, 1)

	require.NoError(t, WriteSliceReport(path, []*model.Record{r0, r1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(string(data))
	require.Len(t, lines, 3) // header + 2 rows
	assert.Equal(t, "stack,slice,tx,ty,tz,rx,ry,rz,weight,inside,scale", lines[0])
	assert.Contains(t, lines[1], "0,0,")
	assert.Contains(t, lines[2], "1,1,")
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
