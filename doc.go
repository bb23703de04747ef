// Package mediad is an MCP tool server for media generation. It submits
// video and image jobs to an external generation API, tracks the async job
// lifecycle (queued, in_progress, completed, failed), persists completed
// artifacts in sandboxed storage on local disk or an S3-compatible object
// store, and serves artifacts back to MCP clients as bounded base64 chunks.
//
// The root package holds the runtime configuration, the static capability
// set, and the storage backend factory. The MCP tool surface lives in
// pkt.systems/mediad/mcp and the binary in cmd/mediad.
package mediad
