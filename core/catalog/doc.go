// Package catalog produces uniform inventories of the three tiers.
//
// Every tier is read through a Lister that yields InventoryRecords: the local
// staging directory, the object-store bucket and the archive root. Callers take
// a full snapshot with List before deciding anything; a snapshot may be stale
// by the time it is acted on, and a later run corrects whatever it missed.
//
// Object lifecycle is never stored explicitly. ObjectState derives it from the
// payload length of an object-store record.
package catalog
