// Package eavt is a small entity/attribute/value index built from three
// chained forests.
//
// A root of the index is a root of the entity forest. Each entity maps to a
// root of the attribute forest, each attribute to a root of the value
// forest, and each value to a transaction number. Pushing a fact rebuilds
// the chain bottom-up, so every earlier index root stays readable.
package eavt
