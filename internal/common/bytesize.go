package common

import "github.com/dustin/go-humanize"

// ByteSizeToString renders size using binary (KiB/MiB/...) units, used in
// diagnostic and throughput log lines. Delegates to go-humanize rather than
// hand-rolling the unit table.
func ByteSizeToString(size int64) string {
	return humanize.IBytes(uint64(size))
}

// RateToString renders a bytes-per-second rate as "<size>/s".
func RateToString(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}
