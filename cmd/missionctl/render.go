package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/terra-clan/daily-missions/internal/models"
)

func printMissions(w io.Writer, view *models.MissionsView) error {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(w, "\nDaily missions for %s (level %d)\n", view.PlayerID, view.Level)
	fmt.Fprintf(w, "Next reset in %s\n\n", view.TimeLeft)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Slot", "Difficulty", "Mission", "Progress", "Reward", "Status"}),
	)
	for _, m := range view.Missions {
		if err := table.Append(missionRow(m)); err != nil {
			return fmt.Errorf("failed to render mission row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render missions: %w", err)
	}

	for _, warning := range view.Warnings {
		color.New(color.FgYellow).Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func missionRow(m models.MissionView) []string {
	if m.Vacant {
		return []string{strconv.Itoa(m.Slot), string(m.Difficulty), "-", "-", "-", color.HiBlackString("vacant")}
	}

	description := m.Description
	if description == "" {
		description = string(m.Type)
	}

	reward := "-"
	if m.Reward != nil {
		reward = fmt.Sprintf("%d %s", m.Reward.Amount, m.Reward.Type)
	}

	return []string{
		strconv.Itoa(m.Slot),
		string(m.Difficulty),
		description,
		fmt.Sprintf("%d/%d", m.Progress, m.Goal),
		reward,
		missionStatus(m),
	}
}

func missionStatus(m models.MissionView) string {
	switch {
	case m.Claimed:
		return color.HiBlackString("claimed")
	case m.Complete:
		return color.GreenString("claimable")
	default:
		return color.YellowString("in progress")
	}
}

func printDefinitions(w io.Writer, defs []*models.Definition) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"ID", "Difficulty", "Type", "Goal", "Level", "Group", "Description"}),
	)
	for _, d := range defs {
		group := "-"
		if d.GroupID > 0 {
			group = strconv.Itoa(d.GroupID)
		}
		row := []string{
			d.ID,
			string(d.Difficulty),
			string(d.Type),
			strconv.Itoa(d.Goal),
			strconv.Itoa(d.LevelRequirement),
			group,
			d.Description,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render definition %s: %w", d.ID, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render definitions: %w", err)
	}
	fmt.Fprintf(w, "%d definitions\n", len(defs))
	return nil
}

func printStreamMessage(w io.Writer, msg *models.StreamMessage) error {
	if msg.Missions != nil {
		return printMissions(w, msg.Missions)
	}
	if msg.Event == nil {
		return nil
	}

	ev := msg.Event
	label := color.New(color.FgCyan).Sprint(ev.Type)
	fmt.Fprintf(w, "%s %s slots=%v\n", ev.At.Format("15:04:05"), label, ev.Slots)
	for _, m := range ev.Missions {
		fmt.Fprintf(w, "  %-8s %-26s %d/%d claimed=%t\n", m.Difficulty, m.Type, m.Progress, m.Goal, m.Claimed)
	}
	return nil
}
