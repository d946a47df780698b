package datastore

import "time"

// Stream is one archived sitting, identity + summary.
type Stream struct {
	VideoID         string
	Title           string
	ViewCount       string
	StreamTimestamp time.Time
	Duration        string
	SummaryMD       string
	TimestampMD     string
	IsPublished     bool
	House           string
}
