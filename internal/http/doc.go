// Package http provides HTTP handlers and middleware for the facility booking API.
//
// Every route except GET /healthz requires an `Authorization: Bearer <jwt>` header; the token's
// subject, role and floor claims become the application principal.
//
//   - POST /reservations, GET /reservations, GET /reservations/{id}, DELETE /reservations/{id}:
//     reservation requests exchanging the `reservationDTO` payload defined in
//     reservation_handler.go. GET /reservations accepts owner, floor, room, status and date
//     (YYYY-MM-DD) filters.
//   - POST /reservations/{id}/approve|reject|cancel|start|end: lifecycle transitions returning the
//     updated reservation.
//   - GET|POST|DELETE /reservations/{id}/extension and POST
//     /reservations/{id}/extension/approve|reject: the extension sub-protocol. GET previews the
//     latest end an extension could reach.
//   - GET /occupancy?floor=&date=: merged busy windows per room.
//   - GET /notifications?unread=&limit=, GET /notifications/unread-count,
//     POST /notifications/{id}/read, POST /notifications/read-all: the caller's inbox. Clients
//     poll the unread count.
//   - POST /report-events: hook for the facility report subsystem (staff tokens).
//   - GET /staff?floor=, PUT /staff/{id}: the staff floor directory mirror.
//
// Errors carry a stable `error_code` (FORBIDDEN, NOT_FOUND, INVALID_TRANSITION, CONFLICT,
// TOO_EARLY, VALIDATION_FAILED) alongside a localized message.
package http
