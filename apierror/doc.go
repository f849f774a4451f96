// Package apierror turns any failure returned by the TradeSense client into
// one Error value a user interface can render without inspecting transport
// details.
//
// Normalize applies these rules in order:
//
//  1. field validation errors, local or from the server, become a validation
//     error whose message joins every field message;
//  2. an ended session becomes an unauthorized error;
//  3. a server-provided message or error string is passed through verbatim;
//  4. a request that got no response becomes a network error;
//  5. anything else keeps its raw message as an unknown error.
package apierror
