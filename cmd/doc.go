// Package cmd implements the rkv command line interface.
//
// The CLI opens a storage backend locally and runs operations against it:
//
//	rkv kv put/get/del/exists/count/list/config   key-value operations
//	rkv migrate                                   snapshot a backend
//	rkv bench                                     measure put/get latency
//
// Backend selection (--backend, --backend-config) can also be provided via
// RKV_* environment variables or an .env file.
package cmd
