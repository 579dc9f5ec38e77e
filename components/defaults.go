package components

import c "github.com/relloyd/sunglass-etl/constants"

// Default field names are used by components to know the names of input and output fields.
var Defaults = struct {
	ChanField4FileName   string // the default map key that contains the object names found in the bucket.
	ChanField4BucketName string // the default map key that contains the bucket location.
	ChanField4MergeDiff  string // the default map key that holds the merge-diff result flag.
	ChanField4RowHash    string // the default map key that holds the row hash.
}{
	ChanField4FileName:   c.FileNameFieldName,
	ChanField4BucketName: "#BucketName",
	ChanField4MergeDiff:  c.DiffStatusFieldName,
	ChanField4RowHash:    c.ColumnRowHash,
}
