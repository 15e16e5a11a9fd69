package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"

	"chat-sync/internal/keys"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// UserExists reports whether a user record is stored for email.
func (g *Gateway) UserExists(ctx context.Context, email string) (exists bool, err error) {
	ctx, done := g.begin(ctx, "user_exists")
	defer func() { done(err) }()

	if strings.TrimSpace(email) == "" {
		return false, fmt.Errorf("%w: empty email", ErrInvalidArgument)
	}
	snap, err := g.store.Get(ctx, keys.UserPath(email))
	if err != nil {
		return false, fmt.Errorf("probe user: %w", err)
	}
	return snap.Exists(), nil
}

// InsertUser writes the user's name fields, then adds the user to the
// users index. If the second step fails the returned error wraps
// ErrPartialWrite: the record exists but is missing from the directory,
// and calling InsertUser again repairs it.
func (g *Gateway) InsertUser(ctx context.Context, user models.User) (err error) {
	ctx, done := g.begin(ctx, "insert_user")
	defer func() { done(err) }()

	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: empty email", ErrInvalidArgument)
	}
	safe := user.SafeEmail()

	err = g.store.Update(ctx, keys.UserPath(user.Email), func(cur store.Snapshot) (any, error) {
		record := map[string]any{}
		if cur.Exists() {
			existing, ok := cur.Value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s", store.ErrShape, cur.Path)
			}
			record = existing
		}
		record["first_name"] = user.FirstName
		record["last_name"] = user.LastName
		return record, nil
	})
	if err != nil {
		return fmt.Errorf("write user record: %w", err)
	}

	entry := models.DirectoryEntry{Name: user.FullName(), Email: safe}
	err = g.update(ctx, keys.UsersIndexPath, func(cur store.Snapshot) (any, error) {
		var index []models.DirectoryEntry
		if cur.Exists() {
			if err := cur.Decode(&index); err != nil {
				return nil, err
			}
		}
		for _, e := range index {
			if e.Email == safe {
				return nil, errNoChange
			}
		}
		return append(index, entry), nil
	})
	if err != nil {
		level.Error(g.logger).Log("msg", "user stored but not indexed", "user", safe, "err", err)
		return fmt.Errorf("%w: add %s to users index: %w", ErrPartialWrite, safe, err)
	}

	g.publish(ctx, RoutingUserRegistered, Event{EventType: "user.registered", Actor: safe})
	return nil
}

// GetAllUsers returns the users index.
func (g *Gateway) GetAllUsers(ctx context.Context) (users []models.DirectoryEntry, err error) {
	ctx, done := g.begin(ctx, "get_all_users")
	defer func() { done(err) }()
	return g.loadDirectory(ctx)
}

// SearchUsers returns the directory entries whose name starts with query,
// ignoring case, leaving out selfEmail.
func (g *Gateway) SearchUsers(ctx context.Context, query, selfEmail string) (users []models.DirectoryEntry, err error) {
	ctx, done := g.begin(ctx, "search_users")
	defer func() { done(err) }()

	entries, err := g.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	return SearchDirectory(entries, query, selfEmail), nil
}

func (g *Gateway) loadDirectory(ctx context.Context) ([]models.DirectoryEntry, error) {
	snap, err := g.store.Get(ctx, keys.UsersIndexPath)
	if err != nil {
		return nil, fmt.Errorf("read users index: %w", err)
	}
	var entries []models.DirectoryEntry
	if err := snap.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: users index: %w", ErrFetchFailed, err)
	}
	return entries, nil
}

// SearchDirectory filters entries by a case-insensitive name prefix and
// drops the entry of selfEmail. An empty query matches nothing.
func SearchDirectory(entries []models.DirectoryEntry, query, selfEmail string) []models.DirectoryEntry {
	prefix := strings.ToLower(strings.TrimSpace(query))
	out := []models.DirectoryEntry{}
	if prefix == "" {
		return out
	}
	self := keys.SafeEmail(selfEmail)
	for _, e := range entries {
		if e.Email == self {
			continue
		}
		if strings.HasPrefix(strings.ToLower(e.Name), prefix) {
			out = append(out, e)
		}
	}
	return out
}
