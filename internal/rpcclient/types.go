package rpcclient

// Part describes one numbered part of a remote file object, as returned by
// file_describe. Keyed by decimal part index ("1".."N") on the wire.
type Part struct {
	State string `json:"state"`
	Size  int64  `json:"size,omitempty"`
}

// FileDescription is the result of file_describe: remote lifecycle state
// plus the per-part completion map.
type FileDescription struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	State string          `json:"state"` // "open" | "closing" | "closed" | "close_failed"
	Parts map[string]Part `json:"parts"`
}

// ResumeCandidate is one match returned by find_resumable: a remote file
// object whose FILE_SIGNATURE_PROPERTY matches the query signature.
type ResumeCandidate struct {
	ID       string          `json:"id"`
	Describe FileDescription `json:"describe"`
}

// FileSignatureProperty is the property key under which the resume
// signature is stored on the remote file object.
const FileSignatureProperty = "FILE_SIGNATURE_PROPERTY"
