package storage

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by instance name so multiple LemOS instances can
// safely coexist on a single Redis server.
//
// State key pattern:  lemos:{instance}:state:{key}
// Record key pattern: lemos:{instance}:{table}:{id}
// Index key pattern:  lemos:{instance}:{table}:_index

// StateKey returns the Redis key for a module state entry.
func StateKey(instanceName, key string) string {
	return fmt.Sprintf("lemos:%s:state:%s", instanceName, key)
}

// RecordKey returns the Redis key for a table record hash.
func RecordKey(instanceName string, table Table, id string) string {
	return fmt.Sprintf("lemos:%s:%s:%s", instanceName, table, id)
}

// IndexKey returns the Redis key for the set of record ids in a table.
func IndexKey(instanceName string, table Table) string {
	return fmt.Sprintf("lemos:%s:%s:_index", instanceName, table)
}
