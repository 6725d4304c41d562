package nodes

import "github.com/chazu/plantarium/pkg/nodesystem"

// Output is the terminal node. Its result is the system's result; when the
// plant reaching it carries no geometry yet, tubes are built for it here.
func Output() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title: "Output",
		Type:  "output",
		Parameters: map[string]nodesystem.ParameterSpec{
			"input": plantInput(),
		},
		ComputeSkeleton: func(p nodesystem.Parameters, _ *nodesystem.Context) (*nodesystem.Result, error) {
			in, err := input(p)
			if err != nil {
				return nil, err
			}
			return in.Clone(), nil
		},
		ComputeGeometry: func(p nodesystem.Parameters, skeleton *nodesystem.Result, ctx *nodesystem.Context) (*nodesystem.Result, error) {
			if skeleton.Geometry != nil {
				return skeleton, nil
			}
			return skeletonGeometry(p, skeleton, ctx)
		},
	}
}
