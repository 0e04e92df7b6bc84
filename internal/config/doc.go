// Package config defines configuration structures for the s3get CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (S3GET_ prefix)
//   - YAML configuration file
//
// # Structure
//
//	type Config struct {
//	    Bucket           string
//	    Object           string
//	    Version          string
//	    Concurrency      int
//	    PartSize         int64
//	    Progress         bool
//	    EndpointHostname string
//	    EndpointPort     string
//	    Timeouts         TimeoutConfig
//	}
//
//	type TimeoutConfig struct {
//	    Request, Resolve, Connection, Read, Data, Write time.Duration
//	}
package config
