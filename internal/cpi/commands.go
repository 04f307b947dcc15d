package cpi

import "errors"

// ErrUnknownCommand is returned by Validate when the (verb, object) pair
// has no binding in the command table.
var ErrUnknownCommand = errors.New("cpi: unknown command")

// Verb is one of the four command grammar actions the CLI/CPI surface
// accepts: `<verb> <object> <args...>`.
type Verb string

const (
	VerbAdd    Verb = "add"
	VerbRemove Verb = "remove"
	VerbList   Verb = "list"
	VerbSet    Verb = "set"
)

// Object names one of the nouns a verb applies to.
type Object string

const (
	ObjectRoute      Object = "route"
	ObjectConnection Object = "connection"
	ObjectDebug      Object = "debug"
	ObjectCacheStats Object = "cachestats"
)

// Command names a single (verb, object) binding, e.g. "add route".
type Command struct {
	Verb   Verb
	Object Object
}

// commandTable is the closed set of (verb, object) pairs the out-of-scope
// CLI parser must honor, matching the `add|remove|list|set <object> <args>`
// grammar. Kept as data rather than a switch so an external parser can
// enumerate the grammar (e.g. for a help listing) without reaching into
// Handler's method set.
var commandTable = map[Command]bool{
	{VerbAdd, ObjectRoute}:         true,
	{VerbRemove, ObjectRoute}:      true,
	{VerbList, ObjectRoute}:        true,
	{VerbAdd, ObjectConnection}:    true,
	{VerbRemove, ObjectConnection}: true,
	{VerbList, ObjectConnection}:   true,
	{VerbSet, ObjectDebug}:         true,
	{VerbList, ObjectCacheStats}:   true,
}

// Valid reports whether (verb, object) is a recognized command.
func Valid(verb Verb, object Object) bool {
	return commandTable[Command{verb, object}]
}

// Validate returns ErrUnknownCommand if (verb, object) has no binding in
// the command table, so an external parser can reject a malformed CLI
// invocation before attempting to marshal its arguments into one of the
// Handler request types.
func Validate(verb Verb, object Object) error {
	if !Valid(verb, object) {
		return ErrUnknownCommand
	}
	return nil
}

// Commands returns every recognized (verb, object) pair, for a CLI's help
// text or shell completion.
func Commands() []Command {
	out := make([]Command, 0, len(commandTable))
	for c := range commandTable {
		out = append(out, c)
	}
	return out
}
