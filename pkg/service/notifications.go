// Lumino Core
// Copyright (c) 2026 The Lumino Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Lumino Core.
//
// Lumino Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Lumino Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Lumino Core.  If not, see <http://www.gnu.org/licenses/>.

package service

import "github.com/rs/zerolog/log"

// NotificationType identifies a coordinator event.
type NotificationType string

const (
	NotificationDisplayConnected    NotificationType = "display.connected"
	NotificationDisplayDisconnected NotificationType = "display.disconnected"
	// NotificationDisplayDisabled is a warning-level event: the display
	// hit the consecutive-failure threshold and stopped accepting
	// commands until reset.
	NotificationDisplayDisabled NotificationType = "display.disabled"
	NotificationDisplayReset    NotificationType = "display.reset"
	NotificationProbeMismatch   NotificationType = "display.probeMismatch"
)

// Notification is an event published to coordinator observers.
type Notification struct {
	Type       NotificationType
	DisplayKey string
	Display    string
	Failures   int
}

// notify publishes n without ever blocking command processing: a nil or
// full observer channel drops the event with a debug log.
func notify(ns chan<- Notification, n Notification) {
	if ns == nil {
		return
	}
	select {
	case ns <- n:
	default:
		log.Debug().Str("type", string(n.Type)).
			Msg("dropped notification, observer channel full")
	}
}
