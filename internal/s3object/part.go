package s3object

// Source identifies the object a part belongs to (spec §3: "object
// reference"). Version, when non-empty, is sent as the versionId query
// parameter.
type Source struct {
	Bucket  string
	Key     string
	Version string
}

// ByteRange is an inclusive byte range, as sent in the Range header.
type ByteRange struct {
	Start int64
	End   int64
}

// PartSpec selects one of the two mutually exclusive ways to address a
// part (spec §3 "Part" / §4.6): either an explicit byte range, or a
// server-side multipart part number. Exactly one of Range/PartNumber is
// set; PartNumber == 0 means "unset".
type PartSpec struct {
	Range      *ByteRange
	PartNumber int
}

// RangeSpec builds a range-mode PartSpec.
func RangeSpec(start, end int64) PartSpec {
	return PartSpec{Range: &ByteRange{Start: start, End: end}}
}

// NativeSpec builds a native-part-mode PartSpec.
func NativeSpec(n int) PartSpec {
	return PartSpec{PartNumber: n}
}
