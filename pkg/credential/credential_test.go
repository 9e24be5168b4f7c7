package credential

import (
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWorkerNode(t *testing.T, s storage.Store) *types.Node {
	t.Helper()
	node := &types.Node{
		ID:        uuid.NewString(),
		Kind:      types.NodeKindWorker,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateNode(node))
	return node
}

func TestIssueThenVerifyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	node := newWorkerNode(t, s)
	c := New(s)

	ak, sk, err := c.Issue(node.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ak)
	require.NotEmpty(t, sk)

	got, err := c.Verify(ak, sk)
	require.NoError(t, err)
	require.Equal(t, node.ID, got.ID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := newTestStore(t)
	node := newWorkerNode(t, s)
	c := New(s)

	ak, _, err := c.Issue(node.ID)
	require.NoError(t, err)

	_, err = c.Verify(ak, "not-the-secret")
	require.ErrorIs(t, err, ErrAuth)
}

func TestVerifyRejectsInactiveNode(t *testing.T) {
	s := newTestStore(t)
	node := newWorkerNode(t, s)
	c := New(s)

	ak, sk, err := c.Issue(node.ID)
	require.NoError(t, err)

	node.Active = false
	require.NoError(t, s.UpdateNode(node))

	_, err = c.Verify(ak, sk)
	require.ErrorIs(t, err, ErrAuth)
}

func TestIssueRejectsNonWorker(t *testing.T) {
	s := newTestStore(t)
	c := New(s)
	coordinator := &types.Node{
		ID:   uuid.NewString(),
		Kind: types.NodeKindCoordinator,
	}
	require.NoError(t, s.CreateNode(coordinator))

	_, _, err := c.Issue(coordinator.ID)
	require.Error(t, err)
}

func TestParseAuthHeader(t *testing.T) {
	ak, sk, ok := ParseAuthHeader("AK-SK abc:def")
	require.True(t, ok)
	require.Equal(t, "abc", ak)
	require.Equal(t, "def", sk)

	_, _, ok = ParseAuthHeader("Bearer xyz")
	require.False(t, ok)
}
