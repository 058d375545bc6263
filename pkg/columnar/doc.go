// Package columnar implements tabula's in-memory columnar table.
//
// # Overview
//
// A Table is an ordered set of named Columns of equal length. Each Column
// owns one dense value buffer of its type plus a validity bitmap with one
// bit per row (set means the value is present). Tables are immutable once
// NewTable returns; nothing in the package mutates a built Column.
//
// # Building
//
// Columns are produced by a Builder whose type is fixed up front:
//
//	b := columnar.NewBuilder("score", schema.Float, len(raw)).
//	    WithParsing(nulls, bools)
//	for _, v := range raw {
//	    if err := b.AppendRaw(v); err != nil {
//	        return err // type_conversion with row, column, raw_value, target_type
//	    }
//	}
//	col := b.Build()
//
// Null tokens append a null whose slot holds the type's zero value.
//
// # Chunks
//
// Table.Chunks splits the rows into views of at most N rows for streaming
// writes. A Chunk references the table's buffers and copies nothing:
//
//	chunks, _ := table.Chunks(1024)
//	for _, ch := range chunks {
//	    ids := ch.Column(0).Int64s() // sub-slice of the column buffer
//	}
//
// # Equality
//
// Table.Equal compares names, types, validity and the values of non-null
// rows. Floats compare by bit pattern so NaN equals itself.
package columnar
