package nodesystem

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func passGeometry(_ Parameters, skeleton *Result, _ *Context) (*Result, error) {
	return skeleton, nil
}

// sourceType emits a single vertical segment of the given length.
func sourceType() TypeDescriptor {
	return TypeDescriptor{
		Title:   "Source",
		Type:    "source",
		Outputs: []string{"plant"},
		Parameters: map[string]ParameterSpec{
			"length": {Type: "number", InputType: "slider", Min: ptr(0), Max: ptr(10), Value: 1.0},
		},
		ComputeSkeleton: func(p Parameters, ctx *Context) (*Result, error) {
			l, err := ctx.Float(p, "length")
			if err != nil {
				return nil, err
			}
			return &Result{Skeletons: [][]float32{{0, 0, 0, 1, 0, float32(l), 0, 1}}}, nil
		},
		ComputeGeometry: passGeometry,
	}
}

// scaleType scales its input along y. It records the node ids it computes
// into calls and fails or panics on demand.
func scaleType(calls *[]string) TypeDescriptor {
	return TypeDescriptor{
		Title:   "Scale",
		Type:    "scale",
		Outputs: []string{"plant"},
		Order:   []string{"input", "factor"},
		Parameters: map[string]ParameterSpec{
			"input":  {Type: "plant", External: true},
			"factor": {Type: "number", Value: 2.0},
			"fail":   {Type: "boolean", Value: false},
			"panic":  {Type: "boolean", Value: false},
		},
		ComputeSkeleton: func(p Parameters, ctx *Context) (*Result, error) {
			*calls = append(*calls, ctx.NodeID)
			if p["fail"] == true {
				return nil, errors.New("boom")
			}
			if p["panic"] == true {
				panic("kaboom")
			}
			factor, err := ctx.Float(p, "factor")
			if err != nil {
				return nil, err
			}
			out := p.Input("input").Clone()
			for _, sk := range out.Skeletons {
				for i := 1; i < len(sk); i += 4 {
					sk[i] *= float32(factor)
				}
			}
			return out, nil
		},
		ComputeGeometry: passGeometry,
	}
}

// counterType produces a socket kind nothing else accepts.
func counterType() TypeDescriptor {
	return TypeDescriptor{
		Title:   "Counter",
		Type:    "counter",
		Outputs: []string{"number"},
		ComputeSkeleton: func(Parameters, *Context) (*Result, error) {
			return &Result{}, nil
		},
		ComputeGeometry: passGeometry,
	}
}

func outputType() TypeDescriptor {
	return TypeDescriptor{
		Title: "Output",
		Type:  "output",
		Parameters: map[string]ParameterSpec{
			"input": {Type: "plant", External: true},
		},
		ComputeSkeleton: func(p Parameters, _ *Context) (*Result, error) {
			return p.Input("input").Clone(), nil
		},
		ComputeGeometry: passGeometry,
	}
}

type fixture struct {
	sys   *System
	clock *ManualClock
	calls *[]string
	rec   *recorder
}

func newFixture(t *testing.T, load bool) *fixture {
	t.Helper()
	clock := NewManualClock(time.Unix(1700000000, 0))
	calls := &[]string{}
	s, err := New(Options{
		Clock:         clock,
		RegisterNodes: []TypeDescriptor{sourceType(), scaleType(calls), counterType(), outputType()},
	})
	require.NoError(t, err)
	if load {
		require.NoError(t, s.Load(SystemData{}))
	}
	return &fixture{sys: s, clock: clock, calls: calls, rec: record(s)}
}

func (f *fixture) create(t *testing.T, id, typ string) *Node {
	t.Helper()
	n, err := f.sys.CreateNode(NodeProps{ID: id, Type: typ})
	require.NoError(t, err)
	return n
}

// chain builds src -> scale -> out.
func (f *fixture) chain(t *testing.T) {
	t.Helper()
	f.create(t, "src", "source")
	f.create(t, "scale", "scale")
	f.create(t, "out", "output")
	require.NoError(t, f.sys.Connect("src:out0", "scale:input"))
	require.NoError(t, f.sys.Connect("scale:out0", "out:input"))
}

// settle commits pending history and save work and forgets the events.
func (f *fixture) settle() {
	f.sys.FlushPending()
	f.rec.reset()
	*f.calls = (*f.calls)[:0]
}

// edit sets the source length and lets the history burst settle.
func (f *fixture) edit(t *testing.T, length float64) {
	t.Helper()
	require.NoError(t, f.sys.SetParameter("src", "length", length))
	f.clock.Advance(DefaultHistoryDelay + time.Millisecond)
	f.sys.Tick()
}

// tipY returns the y coordinate of the last skeleton point of r.
func tipY(t *testing.T, r *Result) float32 {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Skeletons)
	sk := r.Skeletons[0]
	return sk[len(sk)-3]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(s *System) *recorder {
	r := &recorder{}
	s.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
