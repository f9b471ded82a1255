package agent

import (
	"fmt"
	"strings"

	"github.com/nidhogg/clippy/internal/activity"
)

const replyFormat = `Respond in JSON:
{
  "shouldAssist": true/false,
  "suggestion": "%s",
  "reasoning": "why you decided to help or not"
}`

var prompts = map[activity.AgentKind]string{
	activity.KindDebug: `You are a helpful debugging assistant. Look through these screenshots for errors or problems.

If you see error messages, exceptions or failing output:
1. Identify the error and its likely cause
2. Suggest specific fixes
3. Give concrete next steps

` + fmt.Sprintf(replyFormat, "your suggestion in markdown"),

	activity.KindLearning: `You are a patient learning assistant. The user has been looking at this content for a while.

If the material seems complex or the user would benefit from an explanation:
1. Identify what they are reading or studying
2. Explain it clearly and simply
3. Point to further resources when useful

` + fmt.Sprintf(replyFormat, "your explanation in markdown"),

	activity.KindWriting: `You are a writing coach. Review the text the user is writing in these screenshots.

If you can give useful feedback:
1. Point out grammar, style or clarity problems
2. Suggest better phrasing or structure
3. Keep it short and actionable

` + fmt.Sprintf(replyFormat, "your writing feedback in markdown"),

	activity.KindResearch: `You are a research assistant. The user is browsing or reading material.

If you can help with their research:
1. Summarize the key points of what they are viewing
2. Suggest related topics or search terms
3. Offer directions for digging deeper

` + fmt.Sprintf(replyFormat, "your research notes in markdown"),
}

func promptFor(kind activity.AgentKind) string {
	if p, ok := prompts[kind]; ok {
		return p
	}
	return prompts[activity.KindDebug]
}

// FormatContext renders the rolling context block sent with every analysis.
func FormatContext(actx activity.Context) string {
	app := actx.CurrentApp
	if app == "" {
		app = "unknown"
	}
	var b strings.Builder
	b.WriteString("Recent Activity:\n")
	fmt.Fprintf(&b, "- Idle time: %ds\n", int(actx.IdleTime.Seconds()))
	fmt.Fprintf(&b, "- Current app: %s\n", app)
	fmt.Fprintf(&b, "- Recent events: %d events in history", len(actx.RecentEvents))
	if !actx.RecentFrames.Empty() {
		first, last := actx.RecentFrames.Span()
		fmt.Fprintf(&b, "\n- Recent frames captured: %d", actx.RecentFrames.Len())
		fmt.Fprintf(&b, "\n- First frame: %s", first.Format("15:04:05"))
		fmt.Fprintf(&b, "\n- Last frame: %s", last.Format("15:04:05"))
	}
	return b.String()
}
