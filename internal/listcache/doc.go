// Package listcache implements the in-process directory listing cache.
//
// The cache memoizes "what does directory X contain" answers so hot browse
// paths avoid redundant readdir and stat calls. It is bounded by capacity
// (LRU eviction), time (TTL expiry with a periodic sweep on misses), and
// memory pressure (the monitor can halve its effective capacity).
//
// Keys are tagged with a namespace because the two kinds of cached answers
// validate differently: raw listing keys are revalidated against a freshly
// computed path fingerprint, while pre-joined browse keys trust the TTL
// alone; fingerprint validation thrashed on frequently-read directories,
// and the weaker policy is a deliberate trade-off.
//
// The cache never persists anything and holds no authority over
// correctness; dropping it is always safe.
package listcache
