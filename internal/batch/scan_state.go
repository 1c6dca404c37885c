package batch

// ScanState is the state of one scanning worker.
type ScanState int

const (
	// Scanning offers records of the current chunk to the buffer.
	Scanning ScanState = iota
	// BufferFull stops offering; the rest of the chunk is re-presented after
	// the flush.
	BufferFull
	// Flushing sorts the buffer and folds it into the adjacency buffer.
	Flushing
	// Done is reached when the source has no more chunks.
	Done
)

func (s ScanState) String() string {
	switch s {
	case Scanning:
		return "SCANNING"
	case BufferFull:
		return "BUFFER_FULL"
	case Flushing:
		return "FLUSHING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
