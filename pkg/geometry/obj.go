package geometry

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteOBJ writes g as a Wavefront OBJ mesh. Positions, texture coordinates
// and normals share one index space, so every face corner is emitted as
// "v/v/v".
func WriteOBJ(w io.Writer, g *Geometry) error {
	bw := bufio.NewWriter(w)
	n := g.VertexCount()
	hasUV := len(g.UV) == n*2
	hasNormal := len(g.Normal) == n*3

	for i := 0; i < n; i++ {
		fmt.Fprintf(bw, "v %s %s %s\n", fmtFloat(g.Position[i*3]), fmtFloat(g.Position[i*3+1]), fmtFloat(g.Position[i*3+2]))
	}
	if hasUV {
		for i := 0; i < n; i++ {
			fmt.Fprintf(bw, "vt %s %s\n", fmtFloat(g.UV[i*2]), fmtFloat(g.UV[i*2+1]))
		}
	}
	if hasNormal {
		for i := 0; i < n; i++ {
			fmt.Fprintf(bw, "vn %s %s %s\n", fmtFloat(g.Normal[i*3]), fmtFloat(g.Normal[i*3+1]), fmtFloat(g.Normal[i*3+2]))
		}
	}
	for t := 0; t+2 < g.Index.Len(); t += 3 {
		bw.WriteString("f")
		for k := 0; k < 3; k++ {
			v := g.Index.At(t+k) + 1
			switch {
			case hasUV && hasNormal:
				fmt.Fprintf(bw, " %d/%d/%d", v, v, v)
			case hasNormal:
				fmt.Fprintf(bw, " %d//%d", v, v)
			case hasUV:
				fmt.Fprintf(bw, " %d/%d", v, v)
			default:
				fmt.Fprintf(bw, " %d", v)
			}
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// ToOBJ renders g as OBJ text.
func ToOBJ(g *Geometry) string {
	var sb strings.Builder
	_ = WriteOBJ(&sb, g)
	return sb.String()
}

func fmtFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

// objCorner is one face corner: 0-based position, uv and normal indices,
// with -1 for absent attributes.
type objCorner struct {
	v, vt, vn int
}

// ParseOBJ reads a Wavefront OBJ mesh. Polygons are fan-triangulated.
// Corners with distinct attribute combinations become distinct vertices, so
// meshes written by WriteOBJ round-trip with their original indexing.
func ParseOBJ(r io.Reader) (*Geometry, error) {
	var (
		pos, uv, nrm [][]float32
		corners      []objCorner
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v", "vn", "vt":
			want := 3
			if fields[0] == "vt" {
				want = 2
			}
			if len(fields) < want+1 {
				return nil, fmt.Errorf("obj: line %d: %s needs %d components", line, fields[0], want)
			}
			vals := make([]float32, want)
			for i := 0; i < want; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 32)
				if err != nil {
					return nil, fmt.Errorf("obj: line %d: %w", line, err)
				}
				vals[i] = float32(f)
			}
			switch fields[0] {
			case "v":
				pos = append(pos, vals)
			case "vt":
				uv = append(uv, vals)
			default:
				nrm = append(nrm, vals)
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj: line %d: face needs at least 3 corners", line)
			}
			face := make([]objCorner, 0, len(fields)-1)
			for _, f := range fields[1:] {
				c, err := parseCorner(f, len(pos), len(uv), len(nrm))
				if err != nil {
					return nil, fmt.Errorf("obj: line %d: %w", line, err)
				}
				face = append(face, c)
			}
			for i := 1; i+1 < len(face); i++ {
				corners = append(corners, face[0], face[i], face[i+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("obj: %w", err)
	}

	return assembleOBJ(pos, uv, nrm, corners), nil
}

func assembleOBJ(pos, uv, nrm [][]float32, corners []objCorner) *Geometry {
	seen := make(map[objCorner]uint32)
	var order []objCorner
	indices := make([]uint32, len(corners))
	for i, c := range corners {
		idx, ok := seen[c]
		if !ok {
			idx = uint32(len(order))
			seen[c] = idx
			order = append(order, c)
		}
		indices[i] = idx
	}

	// Attributes are emitted only if every corner carries them.
	withUV, withNormal := len(order) > 0, len(order) > 0
	for _, c := range order {
		withUV = withUV && c.vt >= 0
		withNormal = withNormal && c.vn >= 0
	}

	g := &Geometry{
		Position: make([]float32, 0, len(order)*3),
		Index:    IndexBufferFrom(indices),
	}
	for _, c := range order {
		g.Position = append(g.Position, pos[c.v]...)
		if withUV {
			g.UV = append(g.UV, uv[c.vt]...)
		}
		if withNormal {
			g.Normal = append(g.Normal, nrm[c.vn]...)
		}
	}
	if !withNormal {
		g.Normal = CalculateNormals(g.Position, g.Index)
	}
	return g
}

func parseCorner(s string, npos, nuv, nnrm int) (objCorner, error) {
	c := objCorner{v: -1, vt: -1, vn: -1}
	parts := strings.Split(s, "/")
	refs := []*int{&c.v, &c.vt, &c.vn}
	limits := []int{npos, nuv, nnrm}
	for i, p := range parts {
		if i > 2 {
			return c, fmt.Errorf("bad face corner %q", s)
		}
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return c, fmt.Errorf("bad face corner %q: %w", s, err)
		}
		// Negative references count back from the latest element.
		if n < 0 {
			n = limits[i] + n + 1
		}
		if n < 1 || n > limits[i] {
			return c, fmt.Errorf("face corner %q references missing element %d", s, n)
		}
		*refs[i] = n - 1
	}
	if c.v < 0 {
		return c, fmt.Errorf("face corner %q has no position", s)
	}
	return c, nil
}
