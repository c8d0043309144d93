// Package model defines stable boundary types for API layers.
//
// Content identity (canonical metadata bytes and their CIDs) is unaffected by
// any projection. These structs are the only types intended for direct JSON
// serialization by HTTP clients.
package model
