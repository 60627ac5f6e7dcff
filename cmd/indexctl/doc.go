// Command indexctl is a maintenance CLI for the file index database.
//
// It supports the following operations:
//   - stats: print indexed file and directory totals
//   - vacuum: compact the database file after large deletions
//
// The database location is read from DATABASE_DIR (default /database), the
// same variable the server uses, so the tool can run against a live
// deployment's volume.
package main
