package domain

// KeyPrefix is the default namespace for all storage keys.
const KeyPrefix = "cvgen:"

// Keyspace builds storage keys under a namespace prefix.
//
// Layout:
//
//	{prefix}probe:def:{id}                    definition hash
//	{prefix}probe:name:{name}                 name reservation (id)
//	{prefix}probe:result:{id}                 result hash
//	{prefix}probe:lock:{session}:{probe}      one-result-per-probe guard
//	{prefix}probe:session:{session}           ledger hash
//	{prefix}probe:session:{session}:results   result ids of a session
//	{prefix}probe:sessions                    sessions scored by last insert
type Keyspace string

// NewKeyspace returns a keyspace for prefix, falling back to KeyPrefix.
func NewKeyspace(prefix string) Keyspace {
	if prefix == "" {
		prefix = KeyPrefix
	}
	return Keyspace(prefix)
}

// Definition returns the definition hash key.
func (k Keyspace) Definition(id string) string { return string(k) + "probe:def:" + id }

// DefinitionName returns the name reservation key.
func (k Keyspace) DefinitionName(name string) string { return string(k) + "probe:name:" + name }

// Result returns the result hash key.
func (k Keyspace) Result(id string) string { return string(k) + "probe:result:" + id }

// ResultLock returns the (session, probe) uniqueness key.
func (k Keyspace) ResultLock(sessionID, probeID string) string {
	return string(k) + "probe:lock:" + sessionID + ":" + probeID
}

// Session returns the ledger hash key.
func (k Keyspace) Session(id string) string { return string(k) + "probe:session:" + id }

// SessionResults returns the set of result ids for a session.
func (k Keyspace) SessionResults(id string) string { return k.Session(id) + ":results" }

// Sessions returns the sorted set of sessions that have results.
func (k Keyspace) Sessions() string { return string(k) + "probe:sessions" }
