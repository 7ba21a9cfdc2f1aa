// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package telegram implements the Telegram Login Widget data-check protocol.
//
// The widget signs the login payload with HMAC-SHA256 keyed by the SHA-256
// digest of the bot token. Verification reconstructs the data-check string
// (all fields except "hash", sorted by key, serialized as "key=value" lines
// joined by newlines) and compares the recomputed hex digest against the
// received hash in constant time.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HashField is the payload key carrying the signature itself. It is the
// only field excluded from the data-check string.
const HashField = "hash"

// Verify reports whether payload carries a valid Login Widget signature
// for the bot identified by botToken.
//
// Every field except "hash" participates in the check string, including
// fields with empty values: the signer serialized them, so skipping them
// here would break the byte-for-byte match. A missing hash field yields
// false, never an error; callers must treat false as "reject".
func Verify(payload map[string]string, botToken string) bool {
	receivedHash, ok := payload[HashField]
	if !ok || receivedHash == "" {
		return false
	}

	keys := make([]string, 0, len(payload)-1)
	for k := range payload {
		if k == HashField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(payload[k])
	}

	secretKey := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secretKey[:])
	mac.Write([]byte(b.String()))
	calculated := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(calculated), []byte(receivedHash))
}

// Sign computes the Login Widget signature for payload (the "hash" field is
// ignored if present). Exposed for the diagnostic verify endpoint's tests
// and for constructing fixtures; the server itself never signs.
func Sign(payload map[string]string, botToken string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == HashField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+payload[k])
	}

	secretKey := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secretKey[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckFreshness reports whether a login assertion issued at authDate
// (Unix seconds) is at most maxAge old. The boundary is inclusive: an
// assertion exactly maxAge old is still accepted. Assertions from the
// future are rejected.
//
// A stale assertion is a terminal rejection; the client must reauthenticate
// through the widget.
func CheckFreshness(authDate int64, maxAge time.Duration) bool {
	age := time.Now().Unix() - authDate
	return age >= 0 && age <= int64(maxAge.Seconds())
}

// AuthUser is the cleaned user identity extracted from a verified payload.
type AuthUser struct {
	TelegramID int64  `json:"telegram_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name,omitempty"`
	Username   string `json:"username,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
	AuthDate   int64  `json:"auth_date"`
}

// ExtractUser pulls the user identity out of a widget payload. Payloads use
// Telegram's own field names ("id", not "telegram_id"). Unparseable numeric
// fields default to zero; callers validate the payload before extraction.
func ExtractUser(payload map[string]string) AuthUser {
	id, _ := strconv.ParseInt(payload["id"], 10, 64)
	authDate, _ := strconv.ParseInt(payload["auth_date"], 10, 64)
	return AuthUser{
		TelegramID: id,
		FirstName:  payload["first_name"],
		LastName:   payload["last_name"],
		Username:   payload["username"],
		PhotoURL:   payload["photo_url"],
		AuthDate:   authDate,
	}
}
