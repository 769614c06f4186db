// Package cargo defines the value types shared by the planning and
// execution packages: resource kinds and vectors, supplier snapshots, ship
// types, allocations and shipments.
//
// All types are plain values. A planning pass builds them fresh and nothing
// mutates them after the executor takes over.
package cargo
