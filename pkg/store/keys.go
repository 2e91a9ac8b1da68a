package store

import "fmt"

// Key prefixes for every persisted entity, registered in one place and
// keyed by logical entity name. All packages that touch the database go
// through these constructors, so keyspaces never collide and no package
// needs to import another's storage layout.
const (
	prefixEpisode     = "ep:"   // ep:{userID}:{sessionID}:{episodeID}
	prefixArchive     = "arc:"  // arc:{userID}:{sessionID}:{episodeID}
	prefixEpisodeID   = "epid:" // epid:{episodeID} -> full row key
	prefixProfile     = "agent:"
	prefixSupervision = "sup:" // sup:{agentID}:{seq}
	prefixPending     = "pend:"
)

// EpisodeKey builds the primary row key for an episode.
func EpisodeKey(userID, sessionID, episodeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixEpisode, userID, sessionID, episodeID))
}

// ArchiveKey builds the cold-keyspace row key for an archived episode.
func ArchiveKey(userID, sessionID, episodeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixArchive, userID, sessionID, episodeID))
}

// EpisodeIDKey builds the secondary index key mapping episode ID to row key.
func EpisodeIDKey(episodeID string) []byte {
	return []byte(prefixEpisodeID + episodeID)
}

// UserPrefix scans all active episodes of one user.
func UserPrefix(userID string) []byte {
	return []byte(prefixEpisode + userID + ":")
}

// SessionPrefix scans all active episodes of one session.
func SessionPrefix(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixEpisode, userID, sessionID))
}

// ArchiveSessionPrefix scans the archived episodes of one session.
func ArchiveSessionPrefix(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixArchive, userID, sessionID))
}

// AllEpisodesPrefix scans every active episode. Lifecycle sweeps only.
func AllEpisodesPrefix() []byte {
	return []byte(prefixEpisode)
}

// ProfileKey builds the row key for an agent profile.
func ProfileKey(agentID string) []byte {
	return []byte(prefixProfile + agentID)
}

// SupervisionKey builds the append-only key for a supervision record.
func SupervisionKey(agentID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixSupervision, agentID, seq))
}

// SupervisionPrefix scans all supervision records of one agent.
func SupervisionPrefix(agentID string) []byte {
	return []byte(prefixSupervision + agentID + ":")
}

// PendingKey builds the key for a queued episode awaiting embeddings.
func PendingKey(episodeID string) []byte {
	return []byte(prefixPending + episodeID)
}

// PendingPrefix scans the embedding retry queue.
func PendingPrefix() []byte {
	return []byte(prefixPending)
}
