// Package rpc carries datasets between nodes over gRPC. Messages are encoded
// field by field with protowire and travel under the "meshcop" content
// subtype, so no generated code is involved.
package rpc
