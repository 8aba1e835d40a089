/*
Package session implements conversation memory management.

It serializes access to a session id across goroutines (reference-counted mutexes) and,
optionally, across replicas (a DistributedLocker), on top of any ports.SessionStore.
Eviction is the store's concern: the memory store applies TTL and an LRU cap, the Redis
store relies on key expiry.
*/
package session
