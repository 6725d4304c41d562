// Package geometry provides the numeric helpers behind plant generation:
// transfer geometry buffers, skeleton and curve interpolation, ring and tube
// extrusion, normal calculation, OBJ (de)serialization and coherent noise.
//
// All functions are pure; none of them retain or mutate their inputs unless
// the name says so.
package geometry
