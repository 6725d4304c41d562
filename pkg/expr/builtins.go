package expr

import (
	"fmt"
	"math"

	"github.com/chazu/plantarium/pkg/geometry"
	zygo "github.com/glycerine/zygomys/zygo"
)

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	if s == nil {
		return 0, fmt.Errorf("expected number, got nothing")
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// numArgs converts exactly n arguments to float64.
func numArgs(name string, args []zygo.Sexp, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%s requires exactly %d arguments, got %d", name, n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// unary wraps a float function as a one-argument zygomys builtin.
func unary(f func(float64) float64) zygo.ZlispUserFunction {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := numArgs(name, args, 1)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &zygo.SexpFloat{Val: f(v[0])}, nil
	}
}

// registerBuiltins installs the numeric helpers available to expressions.
func registerBuiltins(env *zygo.Zlisp) {
	// (noise x) -> coherent noise in [-1, 1]
	env.AddFunction("noise", unary(geometry.N1D))

	env.AddFunction("sin", unary(math.Sin))
	env.AddFunction("cos", unary(math.Cos))
	env.AddFunction("abs", unary(math.Abs))
	env.AddFunction("floor", unary(math.Floor))

	// (lerp a b t)
	env.AddFunction("lerp", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := numArgs(name, args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &zygo.SexpFloat{Val: geometry.Lerp(v[0], v[1], v[2])}, nil
	})

	// (clamp x lo hi)
	env.AddFunction("clamp", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := numArgs(name, args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &zygo.SexpFloat{Val: math.Max(v[1], math.Min(v[2], v[0]))}, nil
	})

	// (pow x y)
	env.AddFunction("pow", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := numArgs(name, args, 2)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &zygo.SexpFloat{Val: math.Pow(v[0], v[1])}, nil
	})
}
