// Package element defines the 8-byte record format of the element stash.
//
// Each record holds two big-endian uint32 fields. The top bit of the first
// field tells the two record kinds apart:
//
//	node reference  [0 | child start index (31 bits)] [child element map]
//	leaf entry      [1 | key token (31 bits)]         [value]
//
// Key tokens therefore have to leave the top bit clear. [NewKeyField]
// enforces this at the key store boundary.
package element
