// Package bridge reads the WhatsApp bridge database to map Matrix ghosts to
// phone numbers and rooms to the relay login that bridges them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eamarucci/bot-answer/internal/access"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// DefaultGhostPrefix is the localpart prefix of bridged WhatsApp users.
const DefaultGhostPrefix = "whatsapp_"

const telPrefix = "tel:"

var digitsOnly = regexp.MustCompile(`^\d+$`)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Resolver answers identity questions against the bridge database.
type Resolver struct {
	db     querier
	prefix string
	closer func()
}

// Open connects to the bridge database. An empty dsn yields a resolver that only
// understands numeric ghost ids.
func Open(ctx context.Context, dsn, ghostPrefix string) (*Resolver, error) {
	if strings.TrimSpace(dsn) == "" {
		return newResolver(nil, ghostPrefix), nil
	}
	pool, errPool := pgxpool.New(ctx, dsn)
	if errPool != nil {
		return nil, fmt.Errorf("bridge: open pool: %w", errPool)
	}
	r := newResolver(pool, ghostPrefix)
	r.closer = pool.Close
	return r, nil
}

func newResolver(db querier, ghostPrefix string) *Resolver {
	ghostPrefix = strings.TrimSpace(ghostPrefix)
	if ghostPrefix == "" {
		ghostPrefix = DefaultGhostPrefix
	}
	return &Resolver{db: db, prefix: ghostPrefix}
}

// Close releases the pool.
func (r *Resolver) Close() {
	if r != nil && r.closer != nil {
		r.closer()
	}
}

// GhostID extracts the ghost id from a Matrix user id such as
// "@whatsapp_5512996732387:matrix.example".
func (r *Resolver) GhostID(sender string) (string, bool) {
	head := "@" + r.prefix
	if !strings.HasPrefix(sender, head) {
		return "", false
	}
	rest := sender[len(head):]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

// PhoneFromSender resolves a Matrix sender to a phone number.
func (r *Resolver) PhoneFromSender(ctx context.Context, sender string) (string, bool) {
	ghostID, ok := r.GhostID(sender)
	if !ok {
		return "", false
	}
	return r.PhoneFromGhost(ctx, ghostID)
}

// PhoneFromGhost resolves a ghost id (numeric or LID) to a phone number.
// Numeric ids are their own phone number when the bridge knows nothing better.
func (r *Resolver) PhoneFromGhost(ctx context.Context, ghostID string) (string, bool) {
	numeric := digitsOnly.MatchString(ghostID)
	if r.db == nil {
		return ghostID, numeric
	}
	var identifiers []string
	errScan := r.db.QueryRow(ctx, `SELECT identifiers FROM ghost WHERE id = $1`, ghostID).Scan(&identifiers)
	if errScan != nil && !errors.Is(errScan, pgx.ErrNoRows) {
		log.WithError(errScan).WithField("ghost_id", ghostID).Warn("bridge: ghost lookup failed")
	}
	for _, identifier := range identifiers {
		if strings.HasPrefix(identifier, telPrefix) {
			return strings.TrimPrefix(strings.TrimPrefix(identifier, telPrefix), "+"), true
		}
	}
	return ghostID, numeric
}

// PortalByRoom loads the portal bridged into a Matrix room.
func (r *Resolver) PortalByRoom(ctx context.Context, roomID string) (access.Portal, bool, error) {
	if r.db == nil {
		return access.Portal{}, false, nil
	}
	var name, relay *string
	errScan := r.db.QueryRow(ctx, `SELECT name, relay_login_id FROM portal WHERE mxid = $1`, roomID).Scan(&name, &relay)
	if errors.Is(errScan, pgx.ErrNoRows) {
		return access.Portal{}, false, nil
	}
	if errScan != nil {
		return access.Portal{}, false, fmt.Errorf("bridge: load portal: %w", errScan)
	}
	return access.Portal{RoomID: roomID, Name: deref(name), RelayNumber: deref(relay)}, true, nil
}

// PortalsByRelay lists the rooms bridged by a relay login.
func (r *Resolver) PortalsByRelay(ctx context.Context, relay string) ([]access.Portal, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, errQuery := r.db.Query(ctx, `
		SELECT mxid, name, relay_login_id
		FROM portal
		WHERE relay_login_id = $1 AND mxid IS NOT NULL
		ORDER BY name`, relay)
	if errQuery != nil {
		return nil, fmt.Errorf("bridge: list portals: %w", errQuery)
	}
	defer rows.Close()

	var portals []access.Portal
	for rows.Next() {
		var mxid string
		var name, login *string
		if errScan := rows.Scan(&mxid, &name, &login); errScan != nil {
			return nil, fmt.Errorf("bridge: scan portal: %w", errScan)
		}
		portals = append(portals, access.Portal{RoomID: mxid, Name: deref(name), RelayNumber: deref(login)})
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, fmt.Errorf("bridge: iterate portals: %w", errRows)
	}
	return portals, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
