// Package awscreds — see provider.go for the resolution order (spec
// §4.2) and imds.go for the shared IMDSv2 token/request plumbing also
// used by internal/awsregion.
package awscreds
