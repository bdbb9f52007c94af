// Package types provides unified type definitions for the MemFlow engine.
//
// It contains the memory record shared by every tier (Item), the tier
// taxonomy, and the structured error type used across the module. Keeping
// these in one leaf package avoids circular imports between the memory,
// cache, and persistence packages.
package types
