package doctable

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrQuery             = errors.New("query failed")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrParse             = errors.New("parse error")
	ErrStore             = errors.New("store failure")
)

// OpError reports a transform whose preconditions do not hold. It matches
// ErrInvalidOperation.
type OpError struct {
	Op     string
	Column string
	Msg    string
	Err    error
}

func opErrf(op, column string, err error, format string, args ...any) error {
	return &OpError{op, column, fmt.Sprintf(format, args...), err}
}

func (e *OpError) Is(target error) bool {
	return target == ErrInvalidOperation
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if e.Column != "" {
		buf.WriteString(" ")
		buf.WriteString(quoteName(e.Column))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// QueryError carries the diagnostic of a failed or rejected query. It
// matches ErrQuery.
type QueryError struct {
	SQL string
	Msg string
	Err error
}

func queryErrf(sql string, err error, format string, args ...any) error {
	return &QueryError{sql, fmt.Sprintf(format, args...), err}
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQuery
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return "query: " + e.Msg + ": " + e.Err.Error()
		}
		return "query: " + e.Err.Error()
	}
	return "query: " + e.Msg
}

// UnsupportedFormatError is returned by ReadUpload for a file it cannot
// parse by extension. It matches ErrUnsupportedFormat.
type UnsupportedFormatError struct {
	Name string
	Ext  string
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("%s: unsupported format (no file extension)", e.Name)
	}
	return fmt.Sprintf("%s: unsupported format %q", e.Name, e.Ext)
}

// ParseError carries the parser's message for malformed upload content. It
// matches ErrParse.
type ParseError struct {
	Name string
	Line int
	Msg  string
	Err  error
}

func parseErrf(name string, line int, err error, format string, args ...any) error {
	return &ParseError{name, line, fmt.Sprintf(format, args...), err}
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Name)
	if e.Line > 0 {
		fmt.Fprintf(&buf, ":%d", e.Line)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// StoreError wraps a failure reported by a Store. It matches ErrStore.
type StoreError struct {
	Op         string
	Collection CollectionID
	Err        error
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Error() string {
	var buf strings.Builder
	buf.WriteString("store: ")
	buf.WriteString(e.Op)
	if e.Collection.Collection != "" {
		buf.WriteString(" ")
		buf.WriteString(e.Collection.String())
	} else if e.Collection.Database != "" {
		buf.WriteString(" ")
		buf.WriteString(e.Collection.Database)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func quoteName(name string) string {
	return "\"" + name + "\""
}
