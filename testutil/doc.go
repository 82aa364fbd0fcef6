// Package testutil provides workload generators for hamtree tests.
//
// This package is intended for use in tests and benchmarks only.
//
// # Keys
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.Uint32Keys(1000, testutil.MaxKey)  // distinct, shuffled
//	words := rng.StringKeys(100)                   // distinct, may include UTF-8
//
// # Reference Model
//
//	m := testutil.NewModel[uint32]()
//	m.Set(7, 42)
//	for _, e := range m.Entries() { ... }         // sorted by key
package testutil
