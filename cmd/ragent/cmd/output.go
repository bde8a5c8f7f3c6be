package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/memory"
	"github.com/becomeliminal/ragent/retriever"
)

// historyAnswerChars caps answers in history listings.
const historyAnswerChars = 200

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponse(w io.Writer, resp *core.AgentResponse) error {
	if outputFormat == "json" {
		return printJSON(w, resp)
	}

	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	if len(resp.References) > 0 {
		fmt.Fprintf(w, "References: %s\n", strings.Join(resp.References, ", "))
	}
	verified := "no"
	if resp.Verified {
		verified = "yes"
	}
	fmt.Fprintf(w, "Verified:   %s (confidence %.2f)\n", verified, resp.Confidence)
	fmt.Fprintf(w, "Steps:      %s\n", strings.Join(resp.Steps, " > "))
	if resp.TimedOut {
		fmt.Fprintln(w, "Note:       the deadline was reached, the answer may be partial")
	}
	return nil
}

func printSummary(w io.Writer, s *retriever.Summary) error {
	if outputFormat == "json" {
		return printJSON(w, s)
	}

	fmt.Fprintf(w, "Processed %d files, indexed %d chunks in %s\n",
		s.FilesProcessed, s.ChunksIndexed, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  embedded %d, unchanged %d, removed %d\n",
		s.ChunksEmbedded, s.ChunksUnchanged, s.ChunksRemoved)
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d files:\n", len(s.Skipped))
		for _, skip := range s.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", skip.Path, skip.Reason)
		}
	}
	return nil
}

func printStats(w io.Writer, st *app.Stats) error {
	if outputFormat == "json" {
		return printJSON(w, st)
	}

	generator := st.Generator
	if generator == "" {
		generator = "extractive"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Documents:\t%d\n", st.Documents)
	fmt.Fprintf(tw, "Embeddings:\t%s (fallback: %t)\n", st.Backend, st.Fallback)
	fmt.Fprintf(tw, "Generator:\t%s\n", generator)
	fmt.Fprintf(tw, "Memory:\t%t\n", st.MemoryEnabled)
	fmt.Fprintf(tw, "Tasks:\t%d\n", st.Tasks)
	fmt.Fprintf(tw, "Success rate:\t%.1f%%\n", st.SuccessRate*100)
	return tw.Flush()
}

func printTaskLogs(w io.Writer, logs []*core.TaskLog) error {
	if outputFormat == "json" {
		if logs == nil {
			logs = []*core.TaskLog{}
		}
		return printJSON(w, logs)
	}

	if len(logs) == 0 {
		fmt.Fprintln(w, "No tasks recorded.")
		return nil
	}
	for i, log := range logs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, memory.FormatTaskLog(log, historyAnswerChars))
	}
	return nil
}
