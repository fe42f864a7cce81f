package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	kindLibrary = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	kindAPI     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	kindBuild   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	kindReject  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

// OptionItem implements list.Item for one approval answer.
type OptionItem struct {
	Label  string
	Detail string
	Choice approval.Choice
}

func (i OptionItem) FilterValue() string { return i.Label }
func (i OptionItem) Title() string       { return i.Label }
func (i OptionItem) Description() string { return i.Detail }

func formatKind(kind models.Action) string {
	switch kind {
	case models.ActionLibrary:
		return kindLibrary.Render("● library")
	case models.ActionAPI:
		return kindAPI.Render("● api")
	case models.ActionBuild:
		return kindBuild.Render("● build")
	default:
		return string(kind)
	}
}

// optionItems lists every answer for rec: accept, build, each buy option, reject.
func optionItems(rec *models.Recommendation) []list.Item {
	items := []list.Item{
		OptionItem{
			Label:  fmt.Sprintf("Accept recommendation (%s)", rec.Action),
			Detail: rec.Rationale,
			Choice: approval.Choice{Kind: approval.ChoiceAccept},
		},
		OptionItem{
			Label: "Build internally",
			Detail: fmt.Sprintf("%s • %.1fh • %d LOC • $%.0f over 12 months",
				formatKind(models.ActionBuild), rec.Build.Hours, rec.Build.LOC, rec.Build.TwelveMonthCost),
			Choice: approval.Choice{Kind: approval.ChoiceBuild},
		},
	}
	for i, opt := range rec.BuyOptions {
		items = append(items, OptionItem{
			Label: opt.Source,
			Detail: fmt.Sprintf("%s • $%.0f/mo • maturity %.0f/10 • $%.0f over 12 months",
				formatKind(opt.Kind), opt.MonthlyCost, opt.Maturity, opt.TwelveMonthCost),
			Choice: approval.Choice{Kind: approval.ChoiceSelect, Index: i + 1},
		})
	}
	items = append(items, OptionItem{
		Label:  "Reject",
		Detail: kindReject.Render("● do not acquire"),
		Choice: approval.Choice{Kind: approval.ChoiceReject},
	})
	return items
}

func newOptionList(rec *models.Recommendation) list.Model {
	delegate := list.NewDefaultDelegate()
	l := list.New(optionItems(rec), delegate, 80, 20)
	l.Title = "Approve acquisition: " + rec.Capability
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = listTitleStyle
	return l
}
