/*
Package condition evaluates edge conditions.

Conditions use the HCL native expression syntax:

	event.text == "yes" && state.retries < 3
	lower(e.text) == "help" || can(regex("^[0-9]+$", e.text))
	is_vip({ id = s.user.id })

The bindings state, s, event and e are read-only. Attribute paths that do not exist
resolve to null instead of failing. Every registered action is callable by name with an
optional object argument; its return value is the call's value.

Literal "true", "always", "yes" (any case) and the empty string are unconditional and
are never parsed.
*/
package condition
