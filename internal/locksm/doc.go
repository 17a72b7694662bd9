// Package locksm computes the packed lock-column state machine shared by
// every Source implementation, expressed as pure functions over
// time.Time so that sqlsource (a real SQL backend) and memqueue (an
// in-memory reference backend) derive identical
// ready/delayed/stale/in-progress boundaries from the same constants.
//
// The lock column, interpreted as milliseconds since the Unix epoch,
// packs six states into one signed 64-bit integer:
//
//	NULL                                 finished
//	-1                                   abandoned
//	[0, readyWatermark]                  ready
//	(readyWatermark, staleBoundary)      delayed
//	[staleBoundary, now)                 stale
//	[now, now+staleTimeout]              in-progress
//
// readyWatermark and staleBoundary both advance with the wall clock
// (they are "now minus a fixed offset"), which is what keeps the six
// ranges from ever overlapping: delayed lock values are always far
// closer to readyWatermark than to "now", and in-progress lock values
// are always close to "now" relative to the multi-year gap below them.
package locksm
