package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/remerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("k1"), []byte("v1")))

	v, err := s.Get("acct_1", BucketDefault, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = s.Get("acct_1", BucketDefault, []byte("missing"))
	require.True(t, errors.Is(err, remerr.ErrNotFound))

	require.NoError(t, s.DeleteOne("acct_1", BucketDefault, []byte("k1")))
	_, err = s.Get("acct_1", BucketDefault, []byte("k1"))
	require.True(t, errors.Is(err, remerr.ErrNotFound))
}

func TestTenantIsolation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("k"), []byte("a")))
	require.NoError(t, s.PutOne("acct_2", BucketDefault, []byte("k"), []byte("b")))

	v1, err := s.Get("acct_1", BucketDefault, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v1)

	v2, err := s.Get("acct_2", BucketDefault, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("b"), v2)
}

func TestBatchAtomic(t *testing.T) {
	s := newTestStore(t)

	ops := []Op{
		Put(BucketDefault, []byte("a"), []byte("1")),
		Put(BucketIndexes, []byte("idx:a"), []byte("1")),
	}
	require.NoError(t, s.Batch("acct_1", ops))

	v, err := s.Get("acct_1", BucketIndexes, []byte("idx:a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestPrefixIterOrder(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("p:1"), []byte("x")))
	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("p:2"), []byte("y")))
	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("q:1"), []byte("z")))

	var keys []string
	err := s.PrefixIter("acct_1", BucketDefault, []byte("p:"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"p:1", "p:2"}, keys)
}

func TestNextSeqMonotonic(t *testing.T) {
	s := newTestStore(t)

	seq1, err := s.NextSeq("acct_1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	seq2, err := s.NextSeq("acct_1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)

	// A second tenant's sequence is independent.
	seqOther, err := s.NextSeq("acct_2")
	require.NoError(t, err)
	require.Equal(t, uint64(1), seqOther)
}

func TestNextSeqSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	_, err = s.NextSeq("acct_1")
	require.NoError(t, err)
	seq, err := s.NextSeq("acct_1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
	require.NoError(t, s.Close())

	s2, err := NewStore(dir)
	require.NoError(t, err)
	defer s2.Close()
	seq3, err := s2.NextSeq("acct_1")
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq3)
}

func TestCountPrefix(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("e:1"), []byte("x")))
	require.NoError(t, s.PutOne("acct_1", BucketDefault, []byte("e:2"), []byte("x")))
	n, err := s.CountPrefix("acct_1", BucketDefault, []byte("e:"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
