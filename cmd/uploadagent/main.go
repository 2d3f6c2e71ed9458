// Command uploadagent chunks, compresses, and uploads local files to a
// remote object store over presigned part URLs, resuming interrupted
// transfers where possible. CLI parsing, logging configuration, and
// progress rendering are the thin shell around internal/session; the
// interesting engineering lives in internal/{chunk,remotefile,dispatcher}.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
