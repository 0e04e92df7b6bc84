// Package awsregion — see region.go for region resolution (spec §4.3),
// path-style hostname composition, and S3 key escaping.
package awsregion
