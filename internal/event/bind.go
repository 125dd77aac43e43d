// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

// Handler names used in bus failure logs and compliance output.
const (
	HandlerNameLogging = "logging"
	HandlerNameAudit   = "audit"
	HandlerNameEmail   = "email"
	HandlerNameSession = "session"
)

// BindHandlers subscribes the four standard sinks according to the
// registry: one explicit Subscribe call per registry row and requirement
// flag. The composition root calls this once at startup; there is no
// name-based reflection anywhere in the binding path.
func BindHandlers(
	bus *InMemoryBus,
	logging *LoggingHandler,
	audit *AuditHandler,
	emailHandler *EmailHandler,
	session *SessionHandler,
) {
	for _, entry := range Registry {
		if entry.RequiresLogging {
			bus.Subscribe(entry.Type, HandlerNameLogging, logging.Handle)
		}
		if entry.RequiresAudit {
			bus.Subscribe(entry.Type, HandlerNameAudit, audit.Handle)
		}
		if entry.RequiresEmail {
			bus.Subscribe(entry.Type, HandlerNameEmail, emailHandler.Handle)
		}
		if entry.RequiresSession {
			bus.Subscribe(entry.Type, HandlerNameSession, session.Handle)
		}
	}
}
