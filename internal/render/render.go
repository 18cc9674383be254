// Package render builds the MarkdownV2 messages the bot sends.
package render

import (
	"fmt"
	"strings"
	"time"

	"taskbot/internal/domain"
	"taskbot/internal/markup"
)

// Response renders an answer. An empty taskName selects the one-off
// question layout.
func Response(taskName, question, answer string) string {
	body := markup.Reflow(answer)
	if taskName == "" {
		return fmt.Sprintf("🤖 *X\\.AI Response*\n\n"+
			"❓ *Question\\:* `%s`\n\n"+
			"📝 *Answer\\:*\n\n%s",
			markup.Escape(question), body)
	}
	return fmt.Sprintf("🤖 *Task Response*\n\n"+
		"📌 *Task\\:* %s\n"+
		"❓ *Question\\:* `%s`\n\n"+
		"📝 *Answer\\:*\n\n%s",
		markup.Escape(taskName), markup.Escape(question), body)
}

func Help() string {
	return "*Available Commands\\:*\n\n" +
		"📌 */help* \\- Show this help message\n\n" +
		"🆔 */myid* \\- Show your Telegram ID\n\n" +
		"📝 */create* \\<name\\> \\<interval\\_minutes\\> \\<question\\>\n" +
		"Creates a recurring X\\.AI query task\n" +
		"Example\\: `/create weather 60 What's the weather in New York?`\n\n" +
		"📋 */list* \\- Show all active tasks\n\n" +
		"🗑 */delete* \\<name\\> \\- Remove a task\n\n" +
		"❓ */ask* \\<question\\> \\- Ask X\\.AI a one\\-time question\n\n" +
		"📊 */stats* \\- Show your usage statistics\n\n" +
		"👑 */botstats* \\- Show overall usage \\(bot owner only\\)"
}

func TaskList(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "📭 *No tasks found*"
	}
	var b strings.Builder
	b.WriteString("*📋 Active Tasks\\:*\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "🔷 *Task\\:* %s\n"+
			"📝 *Question\\:* `%s`\n"+
			"⏱ *Interval\\:* %d minutes\n"+
			"🕒 *Last run\\:* _%s_\n\n",
			markup.Escape(t.Name),
			markup.Escape(t.Question),
			t.Interval,
			markup.Escape(t.LastRun.UTC().Format(time.RFC3339)))
	}
	return b.String()
}

func TaskCreated(t domain.Task) string {
	return fmt.Sprintf("✅ *Task Created Successfully*\n\n"+
		"📌 *Name\\:* %s\n"+
		"❓ *Question\\:* `%s`\n"+
		"⏱ *Interval\\:* %d minutes\n\n"+
		"🔄 First response coming shortly\\.\\.\\.",
		markup.Escape(t.Name), markup.Escape(t.Question), t.Interval)
}

func TaskDeleted(name string) string {
	return fmt.Sprintf("✅ Task *%s* deleted successfully", markup.Escape(name))
}

func Identity(userID int64, username string, isOwner bool) string {
	if username == "" {
		username = "none"
	}
	owner := "No ❌"
	if isOwner {
		owner = "Yes ✅"
	}
	return fmt.Sprintf("👤 *Your Telegram Info\\:*\n\n"+
		"🆔 *User ID\\:* `%d`\n"+
		"📝 *Username\\:* @%s\n"+
		"👑 *Bot Owner\\:* %s\n",
		userID, markup.Escape(username), owner)
}

func UserStats(s domain.UserStats) string {
	return fmt.Sprintf("*📊 Your Usage Statistics*\n\n"+
		"📈 *Total Commands\\:* %d\n"+
		"📅 *Active Days\\:* %d\n"+
		"⚡ *Average Response Time\\:* %s\n"+
		"❌ *Error Rate\\:* %s",
		s.TotalCommands,
		s.ActiveDays,
		markup.Escape(fmt.Sprintf("%.2fms", s.AvgExecutionMS)),
		markup.Escape(fmt.Sprintf("%.2f%%", s.ErrorRate)))
}

func BotStats(stats []domain.CommandStats) string {
	var b strings.Builder
	b.WriteString("*📊 Bot Usage Statistics*\n\n")
	if len(stats) == 0 {
		b.WriteString("No commands recorded yet\\.")
		return b.String()
	}
	for _, c := range stats {
		fmt.Fprintf(&b, "🔷 *%s*\n"+
			"  ├ Usage Count\\: %d\n"+
			"  ├ Avg Response\\: %sms\n"+
			"  └ Error Rate\\: %s%%\n\n",
			markup.Escape(c.Command),
			c.UsageCount,
			markup.Escape(fmt.Sprintf("%.2f", c.AvgExecutionMS)),
			markup.Escape(fmt.Sprintf("%.2f", c.ErrorRate)))
	}
	return b.String()
}
