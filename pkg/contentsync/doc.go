// Package contentsync implements the local synchronization engine of an
// offline content viewer: revision reconciliation against a remote manifest,
// deduplicated blob downloads, a persisted bridge queue between native code
// and the embedded content surface, and an append-only analytics event log.
//
// It exposes a single Service interface over pluggable repositories (memory,
// Postgres) and blob stores (memory, filesystem, S3) provided under
// subpackages. Remote collaborators (manifest, blob and event endpoints) are
// interfaces with HTTP implementations in the remote subpackage.
//
// Synchronization Model
//
// The remote manifest is authoritative. For every entry the engine compares
// the manifest revision with the local one and derives a create, update, skip
// or conflict action. Conflicts (local revision ahead of the manifest) are
// surfaced and never auto-resolved. Parent rows always commit before or
// together with their children, so a reader never observes a presentation at
// a revision newer than its slides or media files.
package contentsync
