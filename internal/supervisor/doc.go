// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

/*
Package supervisor runs the server's long-lived components under suture v4.

The tree has two layers so that a failing notice subscription cannot take
the HTTP listener down with it:

	earthforus
	├── messaging-layer
	│   ├── websocket-registry
	│   └── notice-forwarder
	└── api-layer
	    └── http-server

Crashed services are restarted with suture's decaying failure count and
backoff. Canceling the context passed to Serve stops every service; each
gets TreeConfig.ShutdownTimeout before it is reported as unstopped.

Supervisor events are logged through sutureslog, which main wires to the
zerolog-backed slog handler from internal/logging:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRegistryService(registry))
	tree.AddMessagingService(services.NewNoticeForwarderService(forwarder))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

The adapters live in the services subpackage.
*/
package supervisor
