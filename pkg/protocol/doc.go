// Package protocol defines the JSON messages exchanged between the comparison
// viewer and the server.
//
// The client sends commands, one per WebSocket text frame or as a JSON array
// to the batch endpoint. Each command names one overlay registry operation:
//
//	{"op":"addImage","image":{"id":"a","visible":true,"opacity":1}}
//	{"op":"removeImage","id":"a"}
//	{"op":"setImageVisibility","id":"a","visible":false}
//	{"op":"setImageOpacity","id":"a","opacity":0.5}
//	{"op":"setImageColorFilter","id":"a","filter":"sepia"}
//	{"op":"setActiveImage","id":"a"}
//	{"op":"toggleMode"}
//	{"op":"toggleActive"}
//
// The server answers with messages carrying either the registry snapshot or
// an error:
//
//	{"type":"snapshot","snapshot":{...}}
//	{"type":"error","error":{"code":"unknown_op","message":"..."}}
//
// Decoding is strict: unknown ops, missing required fields and oversized
// payloads are rejected before anything touches the registry.
package protocol
