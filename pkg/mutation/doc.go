// Package mutation applies edit and delete operations to an in-memory
// session collection.
//
// Invariants:
//   - Operations act on the first record whose session number matches.
//   - Edit touches only the fields that were supplied and reports NoOp when
//     every supplied value already matches the stored one.
//   - Delete removes exactly one record and keeps the order of the rest.
//   - Nothing in this package performs I/O.
package mutation
