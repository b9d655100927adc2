// Package memstore holds in-process implementations of the stores. They keep
// the same conditional-write and version semantics as the Mongo stores and
// back the memory runtime mode and the service tests.
package memstore

import "go.mongodb.org/mongo-driver/bson"

// clone round-trips v through BSON so callers never share memory with the store
// and see the same field mapping the Mongo stores persist.
func clone[T any](v *T) *T {
	raw, err := bson.Marshal(v)
	if err != nil {
		panic("memstore: marshal: " + err.Error())
	}
	var out T
	if err := bson.Unmarshal(raw, &out); err != nil {
		panic("memstore: unmarshal: " + err.Error())
	}
	return &out
}
