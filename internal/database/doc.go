// Package database stores the reduction history for video-reducer in SQLite.
//
// Every request handled by the service or the batch CLI produces one row in
// the reductions table: the source name and content hash, sizes before and
// after, how many encode attempts ran and how the request ended. The
// database uses WAL mode and creates its schema on open.
package database
