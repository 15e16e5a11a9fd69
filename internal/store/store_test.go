package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/db"
	"chat-sync/internal/logging"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			conn, err := db.Connect(context.Background(), db.DriverSQLite, "", logging.Nop())
			require.NoError(t, err)
			s := NewSQL(conn)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			conn, err := db.Connect(context.Background(), db.DriverPostgres, dsn, logging.Nop())
			require.NoError(t, err)
			_, err = conn.Exec(`DELETE FROM nodes`)
			require.NoError(t, err)
			s := NewSQL(conn)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		out["mongo"] = func(t *testing.T) Store {
			m, err := OpenMongo(context.Background(), uri, "chat_sync_test")
			require.NoError(t, err)
			_ = m.Collection().Drop(context.Background())
			t.Cleanup(func() { _ = m.Close() })
			return m
		}
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing path", func(t *testing.T) {
				s := open(t)
				snap, err := s.Get(context.Background(), "nobody-x-com")
				require.NoError(t, err)
				assert.False(t, snap.Exists())
			})

			t.Run("nested set keeps siblings", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Set(ctx, "a-x-com", map[string]any{"first_name": "A", "last_name": "X"}))
				require.NoError(t, s.Set(ctx, "a-x-com/conversations", []map[string]any{{"id": "c1"}}))

				snap, err := s.Get(ctx, "a-x-com")
				require.NoError(t, err)
				var user struct {
					FirstName     string           `json:"first_name"`
					Conversations []map[string]any `json:"conversations"`
				}
				require.NoError(t, snap.Decode(&user))
				assert.Equal(t, "A", user.FirstName)
				require.Len(t, user.Conversations, 1)

				list, err := s.Get(ctx, "a-x-com/conversations")
				require.NoError(t, err)
				raws, err := list.List()
				require.NoError(t, err)
				assert.Len(t, raws, 1)
			})

			t.Run("nil deletes", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Set(ctx, "c1/messages", []string{"x"}))
				require.NoError(t, s.Set(ctx, "c1/messages", nil))
				snap, err := s.Get(ctx, "c1")
				require.NoError(t, err)
				assert.False(t, snap.Exists())
			})

			t.Run("update aborts on error", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Set(ctx, "users", []string{"one"}))
				boom := errors.New("boom")
				err := s.Update(ctx, "users", func(Snapshot) (any, error) { return nil, boom })
				assert.ErrorIs(t, err, boom)

				snap, err := s.Get(ctx, "users")
				require.NoError(t, err)
				assert.Equal(t, []any{"one"}, snap.Value)
			})

			t.Run("invalid path", func(t *testing.T) {
				s := open(t)
				_, err := s.Get(context.Background(), "a@x.com")
				assert.ErrorIs(t, err, ErrInvalidPath)
				err = s.Set(context.Background(), "/", 1)
				assert.ErrorIs(t, err, ErrInvalidPath)
			})
		})
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			const writers = 10

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Update(ctx, "counter/list", func(cur Snapshot) (any, error) {
						var list []string
						if cur.Exists() {
							if err := cur.Decode(&list); err != nil {
								return nil, err
							}
						}
						return append(list, fmt.Sprintf("w%d", i)), nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			snap, err := s.Get(ctx, "counter/list")
			require.NoError(t, err)
			var list []string
			require.NoError(t, snap.Decode(&list))
			assert.Len(t, list, writers)
		})
	}
}

func TestStoreConcurrentFirstWritesToSiblings(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			const writers = 8

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Set(ctx, fmt.Sprintf("fresh/c%d", i), "x"))
				}(i)
			}
			wg.Wait()

			snap, err := s.Get(ctx, "fresh")
			require.NoError(t, err)
			children, ok := snap.Value.(map[string]any)
			require.True(t, ok, "fresh is %T", snap.Value)
			assert.Len(t, children, writers)
		})
	}
}

func TestSnapshotShapeErrors(t *testing.T) {
	_, err := Snapshot{Path: "users"}.List()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Snapshot{Path: "users", Value: map[string]any{"a": 1.0}}.List()
	assert.ErrorIs(t, err, ErrShape)

	var dst []string
	err = Snapshot{Path: "users", Value: "text"}.Decode(&dst)
	assert.ErrorIs(t, err, ErrShape)
}

func TestAssignPrunesEmptyMaps(t *testing.T) {
	root := assign(nil, []string{"a", "b"}, "v")
	assert.Equal(t, map[string]any{"a": map[string]any{"b": "v"}}, root)

	root = assign(root, []string{"a", "b"}, nil)
	assert.Nil(t, root)

	assert.Equal(t, "keep", assign("keep", []string{"x"}, nil))
}
