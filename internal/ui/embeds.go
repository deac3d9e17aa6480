package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/utils"
)

var (
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrPageTooLarge = errors.New("the queue isn't that big")
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	maxTitleLen  = 80
)

// ItemLink renders a queue item as a markdown link when its reference is a
// plain URL, and as escaped text otherwise.
func ItemLink(it player.QueueItem) string {
	title := utils.EscapeMd(utils.Truncate(it.Label(), maxTitleLen))
	if strings.HasPrefix(it.Reference, "http://") || strings.HasPrefix(it.Reference, "https://") {
		return fmt.Sprintf("[%s](%s)", title, it.Reference)
	}
	return title
}

func loopIcon(m player.LoopMode) string {
	switch m {
	case player.LoopTrack:
		return "🔂"
	case player.LoopQueue:
		return "🔁"
	}
	return ""
}

func BuildPlayingEmbed(item player.QueueItem, snap player.Snapshot) *discordgo.MessageEmbed {
	desc := "**" + ItemLink(item) + "**"
	if icon := loopIcon(snap.Loop); icon != "" {
		desc += "\n\n" + icon + " loop: `" + string(snap.Loop) + "`"
	}
	return &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: desc,
		Color:       colorPlaying,
		Footer: &discordgo.MessageEmbedFooter{
			Text: upNext(len(snap.Queue)),
		},
	}
}

// BuildQueueEmbed shows the current item and one page of the upcoming queue.
// page is 1-based.
func BuildQueueEmbed(snap player.Snapshot, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if snap.Current == nil && len(snap.Queue) == 0 {
		return nil, ErrQueueEmpty
	}
	pageSize = max(pageSize, 1)
	page = max(page, 1)
	maxPage := max((len(snap.Queue)+pageSize-1)/pageSize, 1)
	if page > maxPage {
		return nil, ErrPageTooLarge
	}

	var b strings.Builder
	if snap.Current != nil {
		fmt.Fprintf(&b, "**%s**\n", ItemLink(*snap.Current))
	} else {
		b.WriteString("_(idle)_\n")
	}

	begin := (page - 1) * pageSize
	items := lo.Subset(snap.Queue, begin, uint(pageSize))
	if len(items) > 0 {
		b.WriteString("\n**Up next:**\n")
		for idx, it := range items {
			fmt.Fprintf(&b, "`%d.` %s\n", begin+idx+1, ItemLink(it))
		}
	} else {
		b.WriteString("\n_No upcoming tracks._\n")
	}

	title := "Now Playing"
	color := colorPlaying
	if snap.Engine == player.EnginePaused {
		title = "Paused"
		color = colorPaused
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: b.String(),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(len(snap.Queue)), Inline: true},
			{Name: "Loop", Value: "`" + string(snap.Loop) + "` " + loopIcon(snap.Loop), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
	}, nil
}

func queueInfo(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func upNext(n int) string {
	if n == 0 {
		return "Nothing queued after this"
	}
	return queueInfo(n) + " up next"
}
