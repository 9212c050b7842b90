/*
Package types defines the value and schema domain that flows through
every other core package: encoding, storage, the executor, and flow.

# Core Types

  - Type: a fixed enumeration of column kinds (Bool, Int1..Int16,
    Uint1..Uint16, Float4/8, Utf8, Blob, Date, DateTime, Time, Interval,
    Uuid4, Uuid7).
  - Value: one cell, tagged with its Type and a Defined flag standing in
    for SQL-NULL.
  - Schema / Field: an ordered field list describing one row shape. Field
    order is significant — it determines the layout pkg/encoding/row
    computes.
  - Row: a decoded, schema-bound tuple, the shape operators in pkg/engine
    pass between each other before it is packed or after it is unpacked.

# See also

  - pkg/encoding/row for how a Schema becomes a byte layout
  - pkg/encoding/keycode for how an individual Value becomes a sortable
    key fragment
*/
package types
