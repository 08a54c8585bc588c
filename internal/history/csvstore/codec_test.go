package csvstore

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacy = `username,b1_used,b2_used,b3_used,confirmed_150k,first_relation_date,extra
alice,True,no,0,FALSE,2025-08-01,ignored
bob,,,,yes,,
alice,false,t,false,false,2025-07-15,
,true,true,true,true,,
`

func TestDecodeLegacyFile(t *testing.T) {
	entries, err := Decode(strings.NewReader(legacy))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	alice := entries[0]
	assert.Equal(t, "alice", alice.CreatorKey)
	assert.Equal(t, []int{1, 2}, alice.BonusTiersUsed.Tiers())
	assert.False(t, alice.Confirmed)
	require.NotNil(t, alice.FirstRelationDate)
	assert.Equal(t, "2025-07-15", alice.FirstRelationDate.Format(dateLayout))

	bob := entries[1]
	assert.True(t, bob.Confirmed)
	assert.Nil(t, bob.FirstRelationDate)
}

func TestDecodeRequiresUsername(t *testing.T) {
	_, err := Decode(strings.NewReader("b1_used,b2_used\ntrue,false\n"))
	assert.ErrorIs(t, err, ErrMissingKeyColumn)
}

func TestDecodeEmpty(t *testing.T) {
	entries, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEncodeDecode(t *testing.T) {
	entries, err := Decode(strings.NewReader(legacy))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, entries))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(Columns, ",")+"\n"))
	assert.Contains(t, buf.String(), "alice,True,True,False,False,2025-07-15\n")

	again, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, again, len(entries))
	for i := range entries {
		assert.True(t, entries[i].Equal(again[i]))
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES", " y ", "t", "oui"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "false", "0", "n", "maybe"} {
		assert.False(t, ParseBool(v), v)
	}
}

func TestFileStoreMergesOnSave(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "history.csv"))

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Save(ctx, []historydomain.Entry{{CreatorKey: "alice", Confirmed: true}}))
	require.NoError(t, store.Save(ctx, []historydomain.Entry{{CreatorKey: "alice", BonusTiersUsed: historydomain.TierSet(0).With(3)}}))

	entries, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Confirmed)
	assert.True(t, entries[0].BonusTiersUsed.Has(3))
}
