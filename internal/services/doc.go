// Package services wires the client workflows around one API client.
//
// Registry pattern for accessing every workflow (session, query, history,
// chat, admin review, admin documents). Use NewRegistry() to build the
// graph once, then accessor methods to retrieve individual workflows.
// The CLI commands and the terminal UI share the same registry.
package services
