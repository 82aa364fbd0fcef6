// Package intern maps string keys onto an integer forest.
//
// Each distinct string is assigned the next free integer the first time it
// is pushed. The assignments live in a JSON side file next to the forest and
// never change, so integer keys stay valid for every saved root.
//
//	s, _ := intern.Open("./names")
//	root, _ := s.AddRoot()
//	root, _ = s.Push(root, "lot", 10)
//	v, ok, _ := s.Find(root, "lot")
//
// Compared to a string forest, lookups never read a key file, at the cost
// of holding every distinct string in memory.
package intern
