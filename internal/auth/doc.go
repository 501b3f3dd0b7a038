// Package auth decides which inbound senders may cross the bridge.
//
// Identity works in two phases: a sender is matched by their bound
// platform id, or, on first contact, by username against entries that
// opted into promotion. Promotion then binds the numeric id durably
// and retires the username allowance.
package auth
