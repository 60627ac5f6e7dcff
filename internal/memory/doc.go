// Package memory provides a heap usage monitor with a pressure callback.
//
// The monitor samples runtime heap statistics on a fixed interval and
// compares them against a soft limit (explicit, or taken from GOMEMLIMIT).
// When usage crosses the pressure mark the registered callback fires once;
// the directory listing cache uses it to halve its effective capacity
// instead of waiting for a natural overflow.
package memory
