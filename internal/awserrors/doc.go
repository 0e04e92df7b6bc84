// Package awserrors is the shared error vocabulary for every layer of the
// accelerator (spec §7): C4 produces NetworkError/TimeoutError, C5 decides
// retriability from IsRetriable/IsRetriableStatus, C6 produces
// S3ProtocolError/UnexpectedResponseError/UnexpectedXMLError, and C7 wraps
// caller cancellation in CancelledError and construction mistakes in
// ConfigurationError.
package awserrors
