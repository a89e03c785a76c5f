// Package version computes release tags for locally built images.
//
// All functions are pure. The resolver looks at every existing tag of one
// image base name and returns the next tag to build.
//
// # Rules
//
//   - Semantic tags (v1, v1.2, 1.2.3, v1.2.3) bump the patch of the highest triple.
//   - Plain integer tags (7, 42) bump the highest integer, only when no
//     semantic tag exists.
//   - Anything else (latest, sha-abc, rc1) is ignored.
//   - With nothing usable the first release is v1.0.0.
//
// # Usage
//
//	next := version.Next([]string{"svc:v1.0.0", "svc:latest"}) // "v1.0.1"
package version
