package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
	"github.com/chazu/plantarium/pkg/server"
)

var errNoMesh = errors.New("snapshot produced no mesh")

type generateOptions struct {
	input       string
	output      string
	inputFormat string
	meshFormat  string
}

func newGenerateCmd(e *env) *cobra.Command {
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a mesh from a snapshot",
		Long: `Load a node system snapshot and write the output node's mesh.

Examples:
  plantarium generate -i fern.json -o fern.obj
  plantarium generate -i fern.yaml --mesh json > fern.mesh.json
  cat fern.json | plantarium generate -i - -o fern.obj`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(e, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "snapshot file, - for stdin")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "mesh file (default stdout)")
	cmd.Flags().StringVar(&o.inputFormat, "format", "", "snapshot format: json or yaml (default from extension)")
	cmd.Flags().StringVar(&o.meshFormat, "mesh", "obj", "mesh format: obj or json")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// snapshotFormat picks the snapshot format from an explicit flag or the
// file extension.
func snapshotFormat(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func (o *generateOptions) run(e *env, stdout io.Writer) error {
	var in io.Reader = os.Stdin
	if o.input != "-" {
		f, err := os.Open(o.input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := nodesystem.Decode(in, snapshotFormat(o.input, o.inputFormat))
	if err != nil {
		return fmt.Errorf("%s: %w", o.input, err)
	}

	var out io.Writer = stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	result, err := generate(e.app, data, out, o.meshFormat)
	for _, w := range result.Warnings {
		e.logger.Warn(w.Message, zap.String("node", w.NodeID))
	}
	for _, er := range result.Errors {
		e.logger.Error(er.Message, zap.String("node", er.NodeID), zap.String("type", er.Type))
	}
	if err != nil {
		return err
	}
	if result.Mesh != nil {
		e.logger.Info("generated mesh",
			zap.Int("vertices", result.Mesh.Vertices),
			zap.Int("triangles", result.Mesh.Triangles))
	}
	return nil
}

// generate evaluates data and writes the mesh to w as OBJ or JSON.
func generate(app *server.App, data nodesystem.SystemData, w io.Writer, meshFormat string) (server.GenerateResult, error) {
	result := app.Generate(data)
	if result.Mesh == nil {
		return result, errNoMesh
	}
	switch meshFormat {
	case "", "obj":
		g := &geometry.Geometry{
			Position: result.Mesh.Position,
			Normal:   result.Mesh.Normal,
			UV:       result.Mesh.UV,
			Index:    result.Mesh.Index,
		}
		return result, geometry.WriteOBJ(w, g)
	case "json":
		return result, json.NewEncoder(w).Encode(result.Mesh)
	}
	return result, fmt.Errorf("unknown mesh format %q", meshFormat)
}
