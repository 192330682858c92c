package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/blockedby/telememo/internal/collector"
	"github.com/blockedby/telememo/internal/models"
)

const (
	timeLayout   = "2006-01-02 15:04"
	previewWidth = 80
)

func printResult(w io.Writer, res *collector.Result) {
	name := "?"
	if res.Channel != nil {
		name = res.Channel.Handle()
	}
	fmt.Fprintf(w, "%s: pages %d, fetched %d, inserted %d, updated %d, skipped %d, checkpoint %s -> %s\n",
		name, res.Pages, res.Fetched, res.Inserted, res.Updated, res.Skipped,
		optID(res.CheckpointBefore), optID(res.CheckpointAfter))
}

func printInfo(w io.Writer, info *collector.ChannelInfo) {
	ch := info.Channel
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", ch.ID)
	fmt.Fprintf(tw, "title\t%s\n", ch.Title)
	if ch.Username != "" {
		fmt.Fprintf(tw, "username\t@%s\n", ch.Username)
	}
	if ch.MemberCount != nil {
		fmt.Fprintf(tw, "members\t%d\n", *ch.MemberCount)
	}
	if ch.Description != "" {
		fmt.Fprintf(tw, "description\t%s\n", oneLine(ch.Description, previewWidth))
	}
	fmt.Fprintf(tw, "stored\t%d\n", info.Stored)
	if !info.Range.IsEmpty() {
		fmt.Fprintf(tw, "range\t%d..%d\n", info.Range.MinMsgID, info.Range.MaxMsgID)
	}
	fmt.Fprintf(tw, "checkpoint\t%s\n", optID(ch.LastSyncedMessageID))
	if ch.LastSyncedAt != nil {
		fmt.Fprintf(tw, "last synced\t%s\n", ch.LastSyncedAt.Local().Format(timeLayout))
	}
	if run := info.LastRun; run != nil {
		fmt.Fprintf(tw, "last run\t%s %s %s\n", run.Kind, run.Status, run.StartedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func printMessages(w io.Writer, msgs []models.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "no messages found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tID\tDATE\tTEXT")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", m.ChannelID, m.MessageID, m.Date.Local().Format(timeLayout), oneLine(m.Text, previewWidth))
	}
	tw.Flush()
}

func printUnits(w io.Writer, ch *models.Channel, units []models.DisplayUnit) {
	fmt.Fprintf(w, "%s (%s)\n\n", ch.Title, ch.Handle())
	for _, u := range units {
		header := fmt.Sprintf("#%d  %s  views %d  forwards %d  replies %d", u.ID, u.Date.Local().Format(timeLayout), u.Views, u.Forwards, u.Replies)
		if u.IsEdited {
			header += "  (edited)"
		}
		fmt.Fprintln(w, header)
		if u.Forward != nil {
			fmt.Fprintf(w, "  forwarded from %s\n", forwardName(u.Forward))
		}
		if len(u.Media) > 0 {
			fmt.Fprintf(w, "  %s\n", mediaSummary(u.Media))
		}
		if u.Text != "" {
			for line := range strings.SplitSeq(u.Text, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}
}

func printRuns(w io.Writer, runs []models.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tFETCHED\tINSERTED\tUPDATED\tSKIPPED\tCHECKPOINT\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s -> %s\t%s\t%s\n",
			r.StartedAt.Local().Format(timeLayout), r.Kind, r.Status,
			r.Fetched, r.Inserted, r.Updated, r.Skipped,
			optID(r.CheckpointBefore), optID(r.CheckpointAfter), duration, oneLine(r.Error, 60))
	}
	tw.Flush()
}

func mediaSummary(items []models.MediaItem) string {
	counts := make(map[models.MediaType]int)
	var order []models.MediaType
	for _, it := range items {
		if counts[it.MediaType] == 0 {
			order = append(order, it.MediaType)
		}
		counts[it.MediaType]++
	}
	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, fmt.Sprintf("[%d %s]", counts[t], t))
	}
	return strings.Join(parts, " ")
}

func forwardName(f *models.ForwardSource) string {
	switch {
	case f.FromName != "":
		return f.FromName
	case f.FromChannelID != nil:
		return fmt.Sprintf("channel %d", *f.FromChannelID)
	case f.FromUserID != nil:
		return fmt.Sprintf("user %d", *f.FromUserID)
	default:
		return "unknown"
	}
}

func optID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}

// oneLine flattens s and cuts it to width runes.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
