// Package export renders reward tables as CSV or PDF documents.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
)

type Table string

const (
	TableCreators Table = "creators"
	TableAgents   Table = "agents"
	TableManagers Table = "managers"

	TableAgentEvents   Table = "agent_events"
	TableManagerEvents Table = "manager_events"
)

// Tables lists every exportable table in display order.
var Tables = []Table{TableCreators, TableAgents, TableManagers, TableAgentEvents, TableManagerEvents}

type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown_format")

func ParseTable(s string) (Table, error) {
	switch t := Table(strings.ToLower(strings.TrimSpace(s))); t {
	case TableCreators, TableAgents, TableManagers, TableAgentEvents, TableManagerEvents:
		return t, nil
	case "":
		return TableCreators, nil
	}
	return "", fmt.Errorf("%w: %q", rewarddomain.ErrUnknownTable, s)
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Document is one table of one run, ready to render.
type Document struct {
	Title  string
	Label  string
	Table  Table
	Tables rewarddomain.Tables
}

// Renderer writes a document in one format.
type Renderer interface {
	Render(ctx context.Context, doc Document) (io.Reader, error)
}

// Filename builds a download name such as "creatorpay-2025-10-creators.csv".
func Filename(label string, table Table, format Format) string {
	return slug.Make(strings.Join([]string{"creatorpay", label, string(table)}, " ")) + "." + string(format)
}

type sheet struct {
	headers []string
	rows    [][]string
}

func buildSheet(tables rewarddomain.Tables, table Table) (sheet, error) {
	switch table {
	case TableCreators:
		return creatorSheet(tables.Creators), nil
	case TableAgents:
		return groupSheet("agent", tables.Agents), nil
	case TableManagers:
		return groupSheet("group", tables.Managers), nil
	case TableAgentEvents:
		return eventSheet("agent", tables.AgentEvents), nil
	case TableManagerEvents:
		return eventSheet("group", tables.ManagerEvents), nil
	}
	return sheet{}, fmt.Errorf("%w: %q", rewarddomain.ErrUnknownTable, table)
}

func creatorSheet(rows []rewarddomain.CreatorResult) sheet {
	s := sheet{
		headers: []string{
			"period", "creator", "agent", "group", "relation_date", "diamonds", "live_days", "live_hours",
			"class", "active", "tier_reached", "second_tier", "reward_tier1", "reward_tier2",
			"bonus_tier", "bonus_amount", "total_reward",
		},
	}
	for _, r := range rows {
		s.rows = append(s.rows, []string{
			r.Period,
			r.CreatorKey,
			r.Agent,
			r.Group,
			r.RelationDate,
			itoa(r.Diamonds),
			ftoa(r.LiveDays),
			ftoa(r.LiveHours),
			string(r.Class),
			strconv.FormatBool(r.Active),
			strconv.Itoa(r.TierReached),
			strconv.FormatBool(r.SecondTierValidated),
			itoa(r.RewardTier1),
			itoa(r.RewardTier2),
			strconv.Itoa(r.BonusTierPaid),
			itoa(r.BonusAmount),
			itoa(r.TotalReward),
		})
	}
	return s
}

func groupSheet(keyHeader string, rows []rewarddomain.GroupResult) sheet {
	s := sheet{
		headers: []string{
			"period", keyHeader, "creators", "active_creators", "tier2_creators", "tier3_creators",
			"diamonds_total", "diamonds_active", "loss", "commission", "flat_bonus", "total_reward",
		},
	}
	for _, r := range rows {
		s.rows = append(s.rows, []string{
			r.Period,
			r.Key,
			strconv.Itoa(r.Creators),
			strconv.Itoa(r.ActiveCreators),
			strconv.Itoa(r.Tier2Creators),
			strconv.Itoa(r.Tier3Creators),
			itoa(r.DiamondsTotal),
			itoa(r.DiamondsActive),
			itoa(r.Loss),
			itoa(r.Commission),
			itoa(r.FlatBonus),
			itoa(r.TotalReward),
		})
	}
	return s
}

func eventSheet(keyHeader string, events []rewarddomain.GroupEvent) sheet {
	s := sheet{headers: []string{"period", keyHeader, "creator", "tier", "amount"}}
	for _, e := range events {
		s.rows = append(s.rows, []string{e.Period, e.Key, e.Creator, strconv.Itoa(e.Tier), itoa(e.Amount)})
	}
	return s
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
