// Package protocol implements the wire format of the file transfer service.
//
// # Framing
//
// Requests and responses are delimited by a fixed terminator ("\r\n\r\n").
// A Framer accumulates bytes read from a stream and yields one frame each
// time the terminator appears. Base64 payloads and JSON bodies never contain
// a raw CR or LF, so the first occurrence always ends the frame.
//
// # Requests
//
//	VERB [ARG]*
//
// VERB is one of LIST, GET, DELETE, ADD or UPLOAD (case-insensitive). ADD and
// UPLOAD take a file name and the file content encoded as standard base64.
//
// # Responses
//
// Responses are JSON objects with a "status" field ("OK" or "ERROR"):
//
//	{"status":"OK","data":["a.txt","b.bin"]}
//	{"status":"OK","data_namafile":"a.txt","data_file":"aGVsbG8="}
//	{"status":"OK","data":"File a.txt deleted"}
//	{"status":"ERROR","data":"File missing.txt not found"}
//
// # Errors
//
// Errors are classified by Code. Protocol, payload and storage errors are
// reported to the peer as an ERROR response and the connection stays open.
// Transport errors close the connection without a response.
package protocol
