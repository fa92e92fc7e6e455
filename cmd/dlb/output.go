package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"datalogbridge/internal/command"
	"datalogbridge/internal/engine"
	"datalogbridge/internal/importer"
	"datalogbridge/internal/ir"
	"datalogbridge/internal/session"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	answerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// renderHelp renders the grammar help as markdown, falling back to the raw
// text when no renderer is available.
func renderHelp() string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return command.HelpText
	}
	out, err := r.Render(command.HelpText)
	if err != nil {
		return command.HelpText
	}
	return out
}

func printResult(w io.Writer, res *session.Result) {
	switch res.Kind {
	case command.KindHelp:
		fmt.Fprintln(w, renderHelp())
	case command.KindQuery:
		printAnswers(w, res.Answers)
	default:
		fmt.Fprintln(w, infoStyle.Render(res.Message))
	}
}

func printAnswers(w io.Writer, answers *ir.AnswerSet) {
	sorted := answers.Sorted()
	for _, line := range sorted.Format() {
		fmt.Fprintln(w, answerStyle.Render(line))
	}
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%d answer(s)", sorted.Len())))
}

// errorLabel names the error class for display.
func errorLabel(err error) string {
	switch {
	case ir.IsSyntax(err):
		return "syntax error"
	case ir.IsSchema(err):
		return "schema error"
	case ir.IsAllocation(err):
		return "allocation error"
	case ir.IsProtocol(err):
		return "engine error"
	default:
		return "error"
	}
}

func printError(w io.Writer, err error) {
	msg := err.Error()
	var syn *ir.SyntaxError
	if errors.As(err, &syn) {
		msg = syn.Reason.Error()
		if syn.Detail != "" {
			msg += ": " + syn.Detail
		}
	}
	fmt.Fprintln(w, errorStyle.Render(errorLabel(err)+": ")+msg)
}

func printReports(w io.Writer, reports []importer.Report, checkOnly bool) {
	for _, r := range reports {
		status := answerStyle.Render("ok")
		if r.Err != nil || (!checkOnly && !r.OK()) {
			status = errorStyle.Render("failed")
		}
		line := fmt.Sprintf("%s %s (%s): %d clause(s)", status, r.Path, r.Format, r.Clauses)
		if !checkOnly {
			line += fmt.Sprintf(", %d asserted", r.Asserted)
		}
		fmt.Fprintln(w, line)
		if r.Metadata != nil {
			md := r.Metadata
			fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("  %s, device %s (%s %s)", md.Description, md.Device.Name, md.Device.Manufacturer, md.Device.Model)))
		}
		for _, warn := range r.Warnings {
			fmt.Fprintln(w, warningStyle.Render("  warning: "+warn))
		}
		if r.Err != nil {
			fmt.Fprintln(w, "  "+errorStyle.Render(errorLabel(r.Err)+": ")+r.Err.Error())
		}
	}
}

func printStats(w io.Writer, stats engine.Stats, journaled int) {
	fmt.Fprintln(w, headerStyle.Render("Engine"))
	fmt.Fprintf(w, "  facts: %d\n  rules: %d\n", stats.TotalFacts, stats.TotalRules)
	if journaled >= 0 {
		fmt.Fprintf(w, "  journaled clauses: %d\n", journaled)
	}
	if len(stats.PredicateCounts) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Predicates"))
		for _, p := range stats.Predicates() {
			fmt.Fprintf(w, "  %-24s %d\n", p, stats.PredicateCounts[p])
		}
	}
	if len(stats.Rules) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Rules"))
		fmt.Fprintln(w, "  "+strings.Join(stats.Rules, "\n  "))
	}
}
