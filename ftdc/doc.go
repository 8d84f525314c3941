// Package ftdc records periodic metric snapshots in a compact binary log ("full time diagnostic
// capture") and parses such logs back.
//
// A file is a sequence of documents. Each document is either a schema or a datum:
//
//	ftdc   = (schema | datum)*
//	schema = 0x01, JSON array of metric names, '\n'
//	datum  = diff bits (bit 0 is the 0 datum marker), int64 time, float32 per changed metric
//
// A schema lists every flattened metric name, for example
// ["accel.Refits", "accel.Frame.Visible", "process.RssMB"]. Names are the statser name joined
// to the struct field path with dots. A new schema is written whenever the set of fields
// changes; the first datum after a schema is diffed against all zeroes.
//
// Each datum carries one diff bit per schema field, packed after the marker bit and padded to a
// whole byte. A set bit means the value changed since the previous datum and a float32 follows
// for it, in schema order. Unchanged values are omitted. All numbers are big-endian. The
// encoding is lossy past float32 precision, which is plenty for counters and timings.
//
// A reader peeks one byte: 0x01 starts a schema, anything with a clear low bit starts a datum.
package ftdc
