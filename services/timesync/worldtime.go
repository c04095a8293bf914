package timesync

import (
	"bytes"
	"strconv"

	"envnode-go/errcode"
)

// The time service replies with a plain-text document of "key: value" lines.
// Only two lines matter here:
//
//	unixtime: 1700000000
//	raw_offset: 3600
//
// Plain text keeps the device side free of a JSON parser.

var (
	keyUnixtime  = []byte("unixtime: ")
	keyRawOffset = []byte("raw_offset: ")
)

// ParseWorldTime extracts epoch and UTC offset from a plain-text time
// service response body.
func ParseWorldTime(body []byte) (Result, error) {
	var (
		res       Result
		gotEpoch  bool
		gotOffset bool
	)

	for len(body) > 0 {
		line := body
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			body = nil
		}
		line = bytes.TrimRight(line, "\r")

		if v, ok := bytes.CutPrefix(line, keyUnixtime); ok {
			epoch, err := strconv.ParseUint(string(v), 10, 64)
			if err != nil {
				return Result{}, &errcode.E{C: errcode.SyncParse, Op: "unixtime", Err: err}
			}
			res.Epoch = epoch
			gotEpoch = true
		}
		if v, ok := bytes.CutPrefix(line, keyRawOffset); ok {
			off, err := strconv.ParseInt(string(v), 10, 32)
			if err != nil {
				return Result{}, &errcode.E{C: errcode.SyncParse, Op: "raw_offset", Err: err}
			}
			res.OffsetSec = int32(off)
			gotOffset = true
		}
	}

	if !gotEpoch || !gotOffset {
		return Result{}, &errcode.E{C: errcode.SyncParse, Msg: "missing unixtime or raw_offset"}
	}
	if res.Epoch == 0 {
		// Zero is the never-synchronized sentinel; a server returning it
		// would silently poison the persisted clock.
		return Result{}, &errcode.E{C: errcode.SyncParse, Msg: "server returned epoch zero"}
	}
	return res, nil
}

// BuildRequest assembles the one-shot HTTP request for the time document.
func BuildRequest(host, path string) []byte {
	var b []byte
	b = append(b, "GET "...)
	b = append(b, path...)
	b = append(b, " HTTP/1.1\r\nHost: "...)
	b = append(b, host...)
	b = append(b, "\r\nConnection: close\r\n\r\n"...)
	return b
}

// ExtractBody returns the response body following the header block, or nil
// if the headers never terminate.
func ExtractBody(response []byte) []byte {
	i := bytes.Index(response, []byte("\r\n\r\n"))
	if i < 0 {
		return nil
	}
	return response[i+4:]
}
