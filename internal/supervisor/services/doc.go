// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

/*
Package services adapts the server's long-running components to
suture.Service so the supervisor tree can start, restart and stop them.

Each wrapper depends on a small interface rather than the concrete type, so
this package imports neither the websocket nor the notices package:

	HTTPServerService        wraps *http.Server (ListenAndServe/Shutdown)
	RegistryService          wraps *websocket.Registry (RunWithContext)
	NoticeForwarderService   wraps *notices.Forwarder (RunWithContext)

Every wrapper implements fmt.Stringer; suture uses the name in its log
events.
*/
package services
