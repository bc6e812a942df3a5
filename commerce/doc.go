// Package commerce defines the catalog and cart model the gateway's tools
// operate on, the Service contract implemented by storage backends and the
// tiered pricing rule.
//
// Backends live in sub-packages: memory (in-process, used for tests and
// single-instance demos) and sqlstore (SQLite, schema compatible with the
// product import tooling). Product seeds are loaded by the catalog package.
package commerce
