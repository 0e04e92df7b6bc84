// Package progress provides progress reporting for downloads.
//
// This package outputs human-readable progress information to stdout,
// including completion percentage, transfer speed, and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalSize:  totalBytes,
//	    TotalParts: numParts,
//	    Output:     os.Stdout,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as parts complete
//	reporter.PartCompleted(partSize)
//
// # Output Format
//
//	[s3get] Downloading: bucket/key
//	[s3get] Total size: 2.50 GB | Parts: 10 x 256.00 MB | Concurrency: 16
//	[s3get] Progress: 45.2% | 1.13 GB / 2.50 GB | Speed: 78.00 MB/s | ETA: 18s
//	[s3get] Parts: 4 completed | 3 in-progress | 3 pending
package progress
