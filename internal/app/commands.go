package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ghtrack/internal/eventbus"
	"ghtrack/internal/github"
	"ghtrack/internal/notifier"
	"ghtrack/internal/preview"
	"ghtrack/internal/tracker"
	kit "ghtrack/internal/transport"
	logx "ghtrack/pkg/logx"
)

// destKey encodes a chat target as the string key the tracker and stores
// use. Format: "tg:<chat_id>:<thread_id>".
func destKey(t kit.ChatTarget) string {
	return fmt.Sprintf("tg:%d:%d", t.ChatID, t.ThreadID)
}

func parseDest(dest string) (kit.ChatTarget, bool) {
	parts := strings.Split(dest, ":")
	if len(parts) != 3 || parts[0] != "tg" {
		return kit.ChatTarget{}, false
	}
	chatID, err1 := strconv.ParseInt(parts[1], 10, 64)
	threadID, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, true
}

// chatSink bridges tracker notifications into the delivery pipeline.
type chatSink struct {
	app *App
}

func (s *chatSink) Notify(dest, text string) {
	target, ok := parseDest(dest)
	if !ok {
		s.app.log.Warn("notification for unparseable destination", logx.String("dest", dest))
		return
	}
	s.app.bus.Publish(eventbus.Event{Type: "tracker.notify", Data: dest})
	if err := s.app.notif.Notify(context.Background(), notifier.Notification{
		Target: target,
		Text:   text,
	}); err != nil {
		s.app.log.Warn("notification enqueue failed", logx.Err(err))
	}
}

func commandMenu() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "track_repo", Description: "Watch a repo's issues and PRs"},
		{Command: "track_author", Description: "Watch a user's issue and PR activity"},
		{Command: "track_person", Description: "Watch all public activity of a user"},
		{Command: "list_track", Description: "List tracking tasks in this chat"},
		{Command: "remove_track", Description: "Remove one tracking task by id"},
		{Command: "stop_all_track", Description: "Remove every tracking task in this chat"},
		{Command: "og_repo", Description: "Repository preview card"},
		{Command: "og_issue", Description: "Issue preview card"},
		{Command: "quota", Description: "GitHub API quota status"},
		{Command: "history", Description: "Recently notified events"},
		{Command: "help", Description: "Command overview"},
	}
}

const helpText = `GitHub tracker commands:
/track_repo <owner> <repo> - watch a repo's issues and PRs
/track_author <username> - watch a user's issue and PR activity
/track_person <username> - watch all public activity of a user
/list_track - list tasks in this chat
/remove_track <id> - remove one task
/stop_all_track - remove every task in this chat
/og_repo <owner> <repo> - repository preview card
/og_issue <owner> <repo> <number> - issue preview card
/quota - GitHub API quota status
/history [n] - recently notified events
/help - this message`

func (a *App) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if !a.authorized(m.FromID) {
		return
	}

	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	// Group chats address commands as /cmd@BotName.
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]
	target := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	a.log.Debug("command received",
		logx.String("cmd", cmd),
		logx.Int64("from", m.FromID),
		logx.Int64("chat", m.ChatID))

	var reply string
	switch cmd {
	case "track_repo":
		reply = a.cmdTrackRepo(target, args)
	case "track_author":
		reply = a.cmdTrackUser(target, args, tracker.ModeAuthor)
	case "track_person":
		reply = a.cmdTrackUser(target, args, tracker.ModePerson)
	case "list_track":
		reply = a.cmdListTrack(target)
	case "remove_track":
		reply = a.cmdRemoveTrack(ctx, target, args)
	case "stop_all_track":
		reply = a.cmdStopAllTrack(ctx, target)
	case "og_repo":
		reply = a.cmdRepoPreview(ctx, target, args)
	case "og_issue":
		reply = a.cmdIssuePreview(ctx, target, args)
	case "quota":
		reply = a.cmdQuota()
	case "history":
		reply = a.cmdHistory(ctx, target, args)
	case "help", "start":
		reply = helpText
	default:
		return
	}

	if reply == "" {
		return
	}
	if _, err := a.adapter.SendText(ctx, target, reply, nil); err != nil {
		a.log.Warn("reply failed", logx.String("cmd", cmd), logx.Err(err))
	}
}

// authorized gates commands to the configured owners. An empty owner list
// means the bot is open to everyone.
func (a *App) authorized(userID int64) bool {
	if len(a.owners) == 0 {
		return true
	}
	for _, id := range a.owners {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *App) cmdTrackRepo(target kit.ChatTarget, args []string) string {
	if len(args) != 2 {
		return "Usage: /track_repo <owner> <repo>"
	}
	owner, repo := args[0], args[1]
	task, err := a.registry.Add(destKey(target), tracker.ModeRepo, tracker.Target{Owner: owner, Repo: repo})
	if err != nil {
		return "Could not start tracking: " + err.Error()
	}
	a.bus.Publish(eventbus.Event{Type: "task.added", Data: task.ID})
	return fmt.Sprintf("Tracking %s/%s for issue and PR events.\nTask id: %s", owner, repo, task.ID)
}

func (a *App) cmdTrackUser(target kit.ChatTarget, args []string, mode tracker.Mode) string {
	if len(args) != 1 {
		if mode == tracker.ModeAuthor {
			return "Usage: /track_author <username>"
		}
		return "Usage: /track_person <username>"
	}
	username := args[0]
	task, err := a.registry.Add(destKey(target), mode, tracker.Target{Username: username})
	if err != nil {
		return "Could not start tracking: " + err.Error()
	}
	a.bus.Publish(eventbus.Event{Type: "task.added", Data: task.ID})
	if mode == tracker.ModeAuthor {
		return fmt.Sprintf("Tracking %s's issue and PR activity.\nTask id: %s", username, task.ID)
	}
	return fmt.Sprintf("Tracking all public activity of %s.\nTask id: %s", username, task.ID)
}

func (a *App) cmdListTrack(target kit.ChatTarget) string {
	tasks := a.registry.List(destKey(target))
	if len(tasks) == 0 {
		return "No tracking tasks in this chat."
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	var b strings.Builder
	b.WriteString("Tracking tasks:\n")
	for _, t := range tasks {
		wm := "unseeded"
		if t.Watermark != nil {
			wm = strconv.FormatInt(*t.Watermark, 10)
		}
		fmt.Fprintf(&b, "%s  %s  %s  (last event %s)\n", t.ID, t.Mode, t.Target.Label(t.Mode), wm)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) cmdRemoveTrack(ctx context.Context, target kit.ChatTarget, args []string) string {
	if len(args) != 1 {
		return "Usage: /remove_track <id>"
	}
	id := args[0]
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.registry.Remove(rctx, destKey(target), id); err != nil {
		return fmt.Sprintf("No task with id %s in this chat.", id)
	}
	a.bus.Publish(eventbus.Event{Type: "task.removed", Data: id})
	return fmt.Sprintf("Removed tracking task %s.", id)
}

func (a *App) cmdStopAllTrack(ctx context.Context, target kit.ChatTarget) string {
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := a.registry.RemoveAll(rctx, destKey(target))
	if err != nil {
		return "Could not stop all tasks: " + err.Error()
	}
	if n == 0 {
		return "No tracking tasks in this chat."
	}
	return fmt.Sprintf("Stopped %d tracking task(s).", n)
}

func (a *App) cmdRepoPreview(ctx context.Context, target kit.ChatTarget, args []string) string {
	if len(args) != 2 {
		return "Usage: /og_repo <owner> <repo>"
	}
	fctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	info, err := a.client.Repo(fctx, args[0], args[1])
	if err != nil {
		return fetchErrorText("repository", err)
	}
	card, err := preview.RepoCard(info)
	if err != nil {
		return "Could not build the preview: " + err.Error()
	}
	return a.sendCard(fctx, target, card)
}

func (a *App) cmdIssuePreview(ctx context.Context, target kit.ChatTarget, args []string) string {
	if len(args) != 3 {
		return "Usage: /og_issue <owner> <repo> <number>"
	}
	number, err := strconv.Atoi(args[2])
	if err != nil || number <= 0 {
		return "The issue number must be a positive integer."
	}
	fctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	info, err := a.client.Issue(fctx, args[0], args[1], number)
	if err != nil {
		return fetchErrorText("issue", err)
	}
	card, err := preview.IssueCard(info)
	if err != nil {
		return "Could not build the preview: " + err.Error()
	}
	return a.sendCard(fctx, target, card)
}

// sendCard delivers a preview card: rendered image first, then the stock
// image, then plain text. Returns a reply only when nothing was sent.
func (a *App) sendCard(ctx context.Context, target kit.ChatTarget, card preview.Card) string {
	if a.renderer != nil {
		if url, err := a.renderer.Render(ctx, card.HTML); err == nil {
			if _, err := a.adapter.SendPhoto(ctx, target, url, card.Text, nil); err == nil {
				return ""
			}
		} else {
			a.log.Warn("preview render failed; falling back to text", logx.Err(err))
		}
	}
	if card.ImageURL != "" {
		if _, err := a.adapter.SendPhoto(ctx, target, card.ImageURL, card.Text, nil); err == nil {
			return ""
		}
	}
	return card.Text
}

func (a *App) cmdQuota() string {
	q := a.limiter.Snapshot()
	if !q.Known {
		return "No GitHub requests made yet; quota unknown."
	}
	return fmt.Sprintf("GitHub API quota: %d/%d remaining, resets at %s",
		q.Remaining, q.Limit, q.ResetAt.Local().Format("15:04:05"))
}

func (a *App) cmdHistory(ctx context.Context, target kit.ChatTarget, args []string) string {
	if a.hist == nil {
		return "Event history is not enabled."
	}
	n := 10
	if len(args) == 1 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 && v <= 50 {
			n = v
		}
	}
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	entries, err := a.hist.Recent(hctx, destKey(target), n)
	if err != nil {
		return "Could not read history: " + err.Error()
	}
	if len(entries) == 0 {
		return "No notified events yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d notified event(s):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s\n", e.At.Local().Format("01-02 15:04"), e.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func fetchErrorText(what string, err error) string {
	var rl *github.RateLimitedError
	var ae *github.APIError
	switch {
	case errors.Is(err, github.ErrNotFound):
		return "That " + what + " was not found."
	case errors.As(err, &rl):
		return fmt.Sprintf("GitHub rate limit reached; try again in %s.", rl.Wait.Round(time.Second))
	case errors.As(err, &ae):
		return fmt.Sprintf("GitHub returned an error (%d).", ae.Status)
	default:
		return "Could not reach GitHub: " + err.Error()
	}
}
