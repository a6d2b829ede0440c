// Package topology turns flat device lists with tentative parent links into a
// single rooted tree.
//
// Every discovery path (subnet probe, pasted text, AI generation, re-import)
// ends in Sanitize, which is the only step allowed to fail a whole run: a set
// with no candidate root at all cannot be stratified and is reported as a
// StructuralError. All other defects (dangling parents, extra roots, detached
// cycles) are repaired by rewriting ParentID only.
//
// Attach is the lighter root-unification pass discovery adapters apply to
// their own output, optionally inserting a synthetic aggregation switch when
// the root would otherwise fan out to too many children.
package topology
