package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/sketchd/pkg/sketches"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sketchd.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func topnRecord(t *testing.T, name string, values ...string) *Record {
	t.Helper()
	s, err := sketches.NewCmsTopN(3, 0.01, 0.99)
	require.NoError(t, err)
	for _, v := range values {
		s, err = s.Add(sketches.MustItem(sketches.Text, v))
		require.NoError(t, err)
	}
	return &Record{
		Name: name,
		Type: sketches.CmsTopNType,
		Parameters: Parameters{
			ItemType:   "text",
			TopN:       3,
			ErrorBound: 0.01,
			Confidence: 0.99,
		},
		Data: s.Serialize(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	rec := topnRecord(t, "words", "a", "b", "b")
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "words")
	require.NoError(t, err)
	assert.Equal(t, rec.Data, got.Data)
	assert.Equal(t, rec.Parameters, got.Parameters)
	assert.Equal(t, sketches.CmsTopNType, got.Type)

	sk, err := got.Sketch()
	require.NoError(t, err)
	topn := sk.(*sketches.CmsTopN).TopN()
	require.Len(t, topn, 2)
	assert.Equal(t, "b", string(topn[0].Item.Bytes))
	assert.Equal(t, uint64(2), topn[0].Frequency)
}

func TestStoreCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Create(ctx, topnRecord(t, "words")))
	assert.ErrorIs(t, s.Create(ctx, topnRecord(t, "words", "x")), ErrExists)

	got, err := s.Get(ctx, "words")
	require.NoError(t, err)
	sk, err := got.Sketch()
	require.NoError(t, err)
	assert.Equal(t, 0, sk.(*sketches.CmsTopN).Len())
}

func TestStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Upsert(ctx, topnRecord(t, "words", "a")))
	updated := topnRecord(t, "words", "a", "a", "c")
	require.NoError(t, s.Upsert(ctx, updated))

	got, err := s.Get(ctx, "words")
	require.NoError(t, err)
	assert.Equal(t, updated.Data, got.Data)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(len(updated.Data)), infos[0].RawBytes)
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	cms, err := sketches.NewCountMinSketch(0.01, 0.99)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, &Record{
		Name:       "clicks",
		Type:       sketches.CountMinSketchType,
		Parameters: Parameters{ItemType: "int8", ErrorBound: 0.01, Confidence: 0.99},
		Data:       cms.Serialize(),
	}))
	require.NoError(t, s.Create(ctx, topnRecord(t, "words", "a")))

	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "clicks", infos[0].Name)
	assert.Equal(t, sketches.CountMinSketchType, infos[0].Type)
	assert.Equal(t, "int8", infos[0].Parameters.ItemType)
	assert.Equal(t, int64(cms.Size()), infos[0].RawBytes)
	// an empty counter grid compresses well
	assert.Less(t, infos[0].StoredBytes, infos[0].RawBytes)
	assert.Positive(t, infos[0].CreatedAt)
	assert.Equal(t, "words", infos[1].Name)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Create(ctx, topnRecord(t, "words")))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, "words"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Get(ctx, "words")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "words"), ErrNotFound)
}

func TestStoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Create(ctx, topnRecord(t, "words", "a")))

	_, err := s.db.ExecContext(ctx, `UPDATE sketchd_sketches SET checksum = checksum + 1 WHERE name = ?`, "words")
	require.NoError(t, err)

	_, err = s.Get(ctx, "words")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStoreRejectsEmptyName(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Create(context.Background(), topnRecord(t, "")))
}

func TestBlobCodec(t *testing.T) {
	for _, level := range []int{0, 1, 3, 19} {
		c, err := newBlobCodec(level)
		require.NoError(t, err)

		raw := make([]byte, 4096)
		for i := range raw {
			raw[i] = byte(i % 7)
		}
		blob, sum := c.pack(raw)
		assert.Less(t, len(blob), len(raw))

		out, err := c.unpack(blob, sum)
		require.NoError(t, err)
		assert.Equal(t, raw, out)

		_, err = c.unpack(blob, sum^1)
		assert.ErrorIs(t, err, ErrCorrupt)

		_, err = c.unpack([]byte("not zstd"), sum)
		assert.Error(t, err)
		c.close()
	}
}
