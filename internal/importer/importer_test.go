package importer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const frenchExtract = "\ufeffPériode des données;Nom d’utilisateur du/de la créateur(trice);Groupe/Manager;Agent;Date d’établissement de la relation;Diamants;Durée de LIVE (heures);Jours de passage en LIVE valides;Statut du diplôme\n" +
	"2025-10;alice;Team A;agent-1;21/10/2025;80 000;20,5;10;Débutant non diplômé 90j\n" +
	";;;;;;;;\n" +
	"2025-10;bob;Team A;agent-1;;1.234.567;n/a;12;\n"

func TestImporter_FrenchCSV(t *testing.T) {
	imp := New(zap.NewNop())
	res, err := imp.Import(context.Background(), []File{{Name: "octobre.csv", Body: strings.NewReader(frenchExtract)}})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	alice := res.Records[0]
	assert.Equal(t, "2025-10", alice.Period)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, "Team A", alice.Group)
	assert.Equal(t, "agent-1", alice.Agent)
	assert.Equal(t, 80_000.0, *alice.Diamonds)
	assert.Equal(t, 20.5, *alice.LiveHours)
	assert.Equal(t, 10.0, *alice.LiveDays)
	require.NotNil(t, alice.RelationDate)
	assert.Equal(t, time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), *alice.RelationDate)
	assert.Equal(t, "Débutant non diplômé 90j", alice.Status)

	bob := res.Records[1]
	assert.Equal(t, 1_234_567.0, *bob.Diamonds)
	assert.Zero(t, *bob.LiveHours)
	assert.Nil(t, bob.RelationDate)

	require.Len(t, res.Coercions, 1)
	assert.Equal(t, rewarddomain.CoercionEvent{Row: 1, Key: "bob", Field: ColLiveHours, Raw: "n/a"}, res.Coercions[0])
}

func TestImporter_MergesCSVAndXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"creator id", "username", "groupe", "agent", "period", "diamonds", "live hours", "live days", "relation date", "status"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{42, "carol", "Team B", "agent-2", "2025-11", 160000, 30, 15, 45951, ""}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, book.Close())

	csvBody := "period,username,group,agent,diamonds,live_hours,live_days,relation_date,status\n" +
		"2025-10,dave,Team A,agent-1,\"1,500.5\",16,8,,\n"

	res, err := New(zap.NewNop()).Import(context.Background(), []File{
		{Name: "a.csv", Body: strings.NewReader(csvBody)},
		{Name: "B.XLSX", Body: bytes.NewReader(buf.Bytes())},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	require.Len(t, res.Records, 2)

	assert.Equal(t, "dave", res.Records[0].Username)
	assert.Equal(t, 1500.5, *res.Records[0].Diamonds)

	carol := res.Records[1]
	assert.Equal(t, "42", carol.CreatorID)
	assert.Equal(t, 160_000.0, *carol.Diamonds)
	require.NotNil(t, carol.RelationDate)
	assert.Equal(t, time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), *carol.RelationDate)
	assert.Empty(t, res.Coercions)
}

func TestImporter_Errors(t *testing.T) {
	imp := New(zap.NewNop())
	ctx := context.Background()

	_, err := imp.Import(ctx, nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = imp.Import(ctx, []File{{Name: "extract.pdf", Body: strings.NewReader("x")}})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = imp.Import(ctx, []File{{Name: "extract.csv", Body: strings.NewReader("username,diamonds\nalice,1\n")}})
	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "extract.csv", missing.File)
	assert.ElementsMatch(t, []string{
		ColPeriod, ColGroup, ColAgent, ColRelationDate, ColLiveHours, ColLiveDays, ColStatus,
	}, missing.Columns)

	_, err = imp.Import(ctx, []File{{Name: "empty.csv", Body: strings.NewReader("\n\n")}})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestImporter_RequiresStatusAndRelationColumns(t *testing.T) {
	// Every column is present except the two that drive the milestone window.
	body := "period,username,group,agent,diamonds,live_hours,live_days,niveau,date\n" +
		"2025-10,alice,Team A,agent-1,80000,20,10,AL,2025-10-21\n"

	_, err := New(zap.NewNop()).Import(context.Background(), []File{{Name: "octobre.csv", Body: strings.NewReader(body)}})
	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.ElementsMatch(t, []string{ColRelationDate, ColStatus}, missing.Columns)
}

func TestImporter_AcceptsShortStatusHeader(t *testing.T) {
	body := "période;nom d'utilisateur;groupe;agent;date relation;diamants;heures live;jours live;statut diplome\n" +
		"2025-10;alice;Team A;agent-1;2025-10-21;80000;20;10;AL\n"

	res, err := New(zap.NewNop()).Import(context.Background(), []File{{Name: "octobre.csv", Body: strings.NewReader(body)}})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "AL", res.Records[0].Status)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234", 1234, true},
		{"1 234,5", 1234.5, true},
		{"1 234", 1234, true},
		{"1,234.5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"1.234.567", 1234567, true},
		{"1,234,567", 1234567, true},
		{"12h", 12, true},
		{"-3", -3, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseNumber(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-10-21", "21/10/2025", "2025-10-21 14:30:00", "45951"} {
		got, ok := parseDate(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, *got, raw)
	}
	_, ok := parseDate("soon")
	assert.False(t, ok)
}
