package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_JoinLeave(t *testing.T) {
	r := NewConnectionRegistry()

	require.NoError(t, r.Register("a", "s1"))
	require.NoError(t, r.Register("b", "s1"))
	assert.Equal(t, []string{"a", "b"}, r.MembersOf("s1"))

	sessionID, ok := r.Unregister("a")
	require.True(t, ok)
	assert.Equal(t, "s1", sessionID)
	assert.Equal(t, []string{"b"}, r.MembersOf("s1"))

	_, ok = r.SessionOf("a")
	assert.False(t, ok)
	got, ok := r.SessionOf("b")
	assert.True(t, ok)
	assert.Equal(t, "s1", got)
}

func TestConnectionRegistry_Register(t *testing.T) {
	tests := []struct {
		name        string
		setup       [][2]string
		connID      string
		sessionID   string
		wantWarn    bool
		wantMembers map[string][]string
	}{
		{
			name:        "new connection",
			connID:      "a",
			sessionID:   "s1",
			wantMembers: map[string][]string{"s1": {"a"}},
		},
		{
			name:        "same session is idempotent",
			setup:       [][2]string{{"a", "s1"}},
			connID:      "a",
			sessionID:   "s1",
			wantMembers: map[string][]string{"s1": {"a"}},
		},
		{
			name:        "other session moves the connection",
			setup:       [][2]string{{"a", "s1"}, {"b", "s1"}},
			connID:      "a",
			sessionID:   "s2",
			wantWarn:    true,
			wantMembers: map[string][]string{"s1": {"b"}, "s2": {"a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewConnectionRegistry()
			for _, s := range tt.setup {
				require.NoError(t, r.Register(s[0], s[1]))
			}

			err := r.Register(tt.connID, tt.sessionID)
			if tt.wantWarn {
				assert.True(t, errors.Is(err, ErrDuplicateConnection))
			} else {
				assert.NoError(t, err)
			}

			for sessionID, members := range tt.wantMembers {
				assert.Equal(t, members, r.MembersOf(sessionID), "session %s", sessionID)
			}
			got, ok := r.SessionOf(tt.connID)
			assert.True(t, ok)
			assert.Equal(t, tt.sessionID, got)
		})
	}
}

func TestConnectionRegistry_UnregisterUnknown(t *testing.T) {
	r := NewConnectionRegistry()

	_, ok := r.Unregister("ghost")
	assert.False(t, ok)
	assert.Empty(t, r.MembersOf("s1"))
	assert.Equal(t, 0, r.Count())
}

func TestConnectionRegistry_AllAndCounts(t *testing.T) {
	r := NewConnectionRegistry()
	require.NoError(t, r.Register("b", "s2"))
	require.NoError(t, r.Register("a", "s1"))
	require.NoError(t, r.Register("c", "s1"))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ConnectionID)
	assert.Equal(t, "s1", all[0].SessionID)
	assert.False(t, all[0].JoinedAt.IsZero())
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.SessionCount())
}

func TestConnectionRegistry_MembersOfIsACopy(t *testing.T) {
	r := NewConnectionRegistry()
	require.NoError(t, r.Register("a", "s1"))

	members := r.MembersOf("s1")
	members[0] = "mutated"

	assert.Equal(t, []string{"a"}, r.MembersOf("s1"))
}

func TestConnectionRegistry_Concurrent(t *testing.T) {
	r := NewConnectionRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			_ = r.Register(connID, fmt.Sprintf("s%d", i%3))
			_ = r.Register(connID, fmt.Sprintf("s%d", (i+1)%3))
			if i%2 == 0 {
				r.Unregister(connID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count())
	total := 0
	for s := 0; s < 3; s++ {
		total += len(r.MembersOf(fmt.Sprintf("s%d", s)))
	}
	assert.Equal(t, 25, total)
}

// op encodes one registry call: connection = n%5, session = (n/5)%3, unregister when (n/15)%4 == 3.
func applyOp(r *ConnectionRegistry, model map[string]string, n int) {
	connID := fmt.Sprintf("c%d", n%5)
	sessionID := fmt.Sprintf("s%d", (n/5)%3)
	if (n/15)%4 == 3 {
		r.Unregister(connID)
		delete(model, connID)
		return
	}
	_ = r.Register(connID, sessionID)
	model[connID] = sessionID
}

func TestConnectionRegistry_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	ops := gen.SliceOf(gen.IntRange(0, 59))

	properties.Property("membersOf matches the last join/leave of every connection", prop.ForAll(
		func(seq []int) bool {
			r := NewConnectionRegistry()
			model := map[string]string{}
			for _, n := range seq {
				applyOp(r, model, n)
			}

			for s := 0; s < 3; s++ {
				sessionID := fmt.Sprintf("s%d", s)
				var want []string
				for connID, sid := range model {
					if sid == sessionID {
						want = append(want, connID)
					}
				}
				got := r.MembersOf(sessionID)
				if len(got) != len(want) {
					return false
				}
				for _, connID := range got {
					if model[connID] != sessionID {
						return false
					}
				}
			}
			return r.Count() == len(model)
		},
		ops,
	))

	properties.Property("a connection is a member of at most one session", prop.ForAll(
		func(seq []int) bool {
			r := NewConnectionRegistry()
			model := map[string]string{}
			for _, n := range seq {
				applyOp(r, model, n)
			}

			seen := map[string]string{}
			for s := 0; s < 3; s++ {
				sessionID := fmt.Sprintf("s%d", s)
				for _, connID := range r.MembersOf(sessionID) {
					if _, dup := seen[connID]; dup {
						return false
					}
					seen[connID] = sessionID
					if got, ok := r.SessionOf(connID); !ok || got != sessionID {
						return false
					}
				}
			}
			return true
		},
		ops,
	))

	properties.TestingRun(t)
}
