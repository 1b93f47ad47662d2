// Package storage is the write/read sink behind chainkit's durable outputs:
// per-iteration metric records, the performance dashboard and context graph
// exports.
//
// # Backends
//
//   - storage/local: filesystem rooted at a base directory (the default)
//   - storage/s3: Amazon S3 and S3-compatible stores such as MinIO
//
// Backends register themselves with RegisterFactory from an init function;
// import the backend package for its side effect before calling New.
//
// # Configuration
//
//	storage:
//	  provider: "local"
//	  base_path: "./audits"
package storage
