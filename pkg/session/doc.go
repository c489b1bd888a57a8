/*
Package session implements caller-side session serialization.

The dialog engine does not lock sessions itself: two turns of the same session running
at once could overwrite each other's state. The Manager serializes them, pairing
reference-counted local locks with an optional distributed lock for deployments that
run several replicas against a shared state store.
*/
package session
