// Package s3object — see get.go for the object-part GET (C6), part.go
// for the range/part-number addressing modes, and xmlerror.go /
// contentrange.go for response parsing.
package s3object
