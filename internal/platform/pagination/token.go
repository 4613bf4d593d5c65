// Package pagination builds the opaque page tokens returned by list
// endpoints. A token captures the resume position of a Firestore query: the
// ordering timestamp plus the document id acting as the tie-breaker. Tokens
// are base64url encoded so they survive query strings untouched.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPageToken reports a token that was not produced by EncodeToken.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

const tokenVersion = "v1"

// Cursor is the resume position fed into a Firestore StartAfter clause.
type Cursor struct {
	SortKey time.Time
	DocID   string
}

// EncodeToken serialises the cursor into an opaque page token. A cursor
// missing either component encodes to the empty token (no further pages).
func EncodeToken(cursor Cursor) string {
	if cursor.DocID == "" || cursor.SortKey.IsZero() {
		return ""
	}
	payload := fmt.Sprintf("%s|%s|%s", tokenVersion, cursor.SortKey.UTC().Format(time.RFC3339Nano), cursor.DocID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// DecodeToken parses a token produced by EncodeToken. The empty token decodes
// to the zero cursor, meaning the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	parts := strings.SplitN(string(decoded), "|", 3)
	if len(parts) != 3 || parts[0] != tokenVersion || parts[2] == "" {
		return Cursor{}, ErrInvalidPageToken
	}
	sortKey, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return Cursor{SortKey: sortKey, DocID: parts[2]}, nil
}
