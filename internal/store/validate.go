// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package store

import (
	"errors"
	"regexp"
)

var botIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// ErrInvalidBotID rejects identifiers that could smuggle PostgREST filter
// syntax into a query.
var ErrInvalidBotID = errors.New("invalid bot id")

// ValidateBotID checks a tenant identifier before it is used in any scoped
// query. Valid ids are 1-100 characters of [a-zA-Z0-9_-] and contain at
// least one alphanumeric character.
func ValidateBotID(id string) error {
	if !botIDPattern.MatchString(id) {
		return ErrInvalidBotID
	}
	for _, r := range id {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return nil
		}
	}
	return ErrInvalidBotID
}
