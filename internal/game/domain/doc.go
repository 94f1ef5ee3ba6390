// Package domain holds the persistent entity types of the multiverse:
// characters, the universes they inhabit, the events that mutate them, and
// the top-level multiverse aggregate, plus the supporting market, mission,
// and evaluation records.
//
// Records are stored as JSON documents inside named collections and therefore
// keep stable JSON field names; legacy snake_case and camelCase names are
// preserved for compatibility with existing collection files.
package domain
