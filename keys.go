package tally

import "github.com/unkn0wn-root/tally/internal/util"

// Keyspace namespaces every key of one application:
//
//	<app>.<subsystem>:<id>          counter or primary read-model
//	<app>.<subsystem>:<id>/<facet>  derived read-model of the same entity
//
// Keys of one entity share the <id> suffix across subsystems; keys of one
// subsystem share the "<app>.<subsystem>:" prefix.
type Keyspace struct {
	App string
}

func (k Keyspace) Key(subsystem, id string) string {
	return util.Key(k.App, subsystem, id)
}

// Prefix matches every key of subsystem, all ids.
func (k Keyspace) Prefix(subsystem string) string {
	return util.Prefix(k.App, subsystem)
}

// Derived is a facet key hanging off an entity's primary key.
func (k Keyspace) Derived(subsystem, id, facet string) string {
	return k.Key(subsystem, id) + "/" + facet
}

// DerivedPrefix matches every facet of one entity (but not the primary key itself,
// and not ids that merely start with id).
func (k Keyspace) DerivedPrefix(subsystem, id string) string {
	return k.Key(subsystem, id) + "/"
}
