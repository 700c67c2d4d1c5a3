// Package testutil provides test helpers for chanvault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: filesystem operations (WriteFile, MustExist)
//   - pages.go: canned search pages for transport tests
//
// Seeding helpers that need a populated message table live in the dbtest
// subpackage.
package testutil
