// Package main hosts the cratesync CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the reconcile engine,
// the mapping store and the Tidal client: mirror management, one-shot sync
// and recover passes, maintenance, CSV imports and configuration scaffolding.
// Configuration resolution and logger setup live in commandContext so the
// subcommands only deal with presentation.
package main
