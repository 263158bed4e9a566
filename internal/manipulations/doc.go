// Package manipulations describes image and video transformations as an
// ordered, mergeable list of parameter groups.
//
// A Set is built group by group:
//
//	set := manipulations.New()
//	set.Add(manipulations.Width, "368").Add(manipulations.Height, "232")
//	set.NextGroup().Add(manipulations.Blur, "3")
//
// Groups are applied left to right. Operations inside one group are
// independent of each other and are executed in ApplyOrder.
//
// Per-item overrides are placed in front of a conversion's declared chain
// with AddAsFirstManipulations. The prepended groups are always copies, so a
// single override set can be prepended to many conversions without sharing
// state.
package manipulations
