package stac

// ItemReader produces a stream of raw STAC Items. Read returns io.EOF once
// the stream is exhausted.
type ItemReader interface {
	Read() (map[string]interface{}, error)
	Close() error
}

// ReplayableReader is an ItemReader that can be re-enumerated from the start
// with identical content and ordering. Two-pass schema inference requires a
// replayable source.
type ReplayableReader interface {
	ItemReader
	Reset() error
}
