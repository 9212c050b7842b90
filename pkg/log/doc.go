/*
Package log provides structured logging built on zerolog.

A single global Logger is configured once via Init and shared across every
package. Context loggers (WithComponent, WithVersion, WithFlowID,
WithConsumerID) attach fields used throughout the storage engine and flow
runtime: a commit version, a flow id, a CDC consumer id.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("engine started")

	flowLog := log.WithFlowID(flow.Id)
	flowLog.Info().Msg("flow reloaded")

	versionLog := log.WithVersion(cdc.Version)
	versionLog.Debug().Int("diffs", len(cdc.Diffs)).Msg("applying version")
*/
package log
