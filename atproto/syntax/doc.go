/*
Package syntax provides string types for the atproto identifiers used by
the OAuth client engine: DIDs and handles.

Types are immutable once parsed. Always construct them through the Parse
helpers instead of casting raw strings, especially for external input.
*/
package syntax
