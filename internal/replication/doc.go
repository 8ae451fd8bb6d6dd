// Package replication replays queued directory changes against a replica.
//
// Engine.Apply drives one ChangeRecord through session setup, dispatch and
// rebinding, and reports the result as an Outcome. Modify records are first
// compiled by CompileModify into grouped attribute operations.
package replication
