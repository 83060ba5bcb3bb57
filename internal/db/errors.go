package db

import "errors"

var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrGraphNotFound = errors.New("db: graph not found")
)

// Command names recorded in Error.Op.
const (
	OpPing = "PING"

	OpGet     = "GET"
	OpSet     = "SET"
	OpDel     = "DEL"
	OpScan    = "SCAN"
	OpHSet    = "HSET"
	OpHGet    = "HGET"
	OpHGetAll = "HGETALL"

	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpAggregate   = "FT.AGGREGATE"

	OpGraphQuery   = "GRAPH.QUERY"
	OpGraphROQuery = "GRAPH.RO_QUERY"
	OpGraphDelete  = "GRAPH.DELETE"
)

// Error is a backend failure tagged with the command and, when there is
// one, the key it touched.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
