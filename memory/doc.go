// Package memory records what the agent did for each query.
//
// Every agent run that completes produces one immutable TaskLog holding the
// query, the ids of the passages it retrieved, the reasoning steps, the
// answer and an importance score derived from retrieval confidence.
//
// Architecture:
//   - Store: persistence backend (SQLite by default, chromem-go when
//     similarity lookup over past tasks is wanted)
//   - Manager: bounded-latency writes, retention cleanup and stats
//
// Retention: logs older than the configured number of days are purged only
// when their importance is below the threshold. Important logs are kept
// forever.
//
// Writes are synchronous with a timeout, so a log written by a query is
// visible to the next Recent or Stats call.
package memory
