package menu

const DefaultTitle = "🤖 QinBot"

// CalendarCommand is the command sent by the default menu's item 3.
const CalendarCommand = "What's on my calendar today and tomorrow? Any upcoming events I should know about?"

var defaultItems = []Item{
	{
		Key:     "1",
		Label:   "🎯 Focus",
		Kind:    KindInstant,
		Command: "What have I been focused on the last few days? Give me a brief summary of my current projects, priorities, and momentum. Check memory files and recent context.",
	},
	{
		Key:     "2",
		Label:   "📧 Emails",
		Kind:    KindInstant,
		Command: "Check my emails. Summarize any unread messages briefly - who from, subject, urgency. Use gog skill.",
	},
	{
		Key:     "3",
		Label:   "📅 Calendar",
		Kind:    KindInstant,
		Command: CalendarCommand,
	},
	{
		Key:     "4",
		Label:   "🌤️ Weather",
		Kind:    KindInstant,
		Command: "What's the weather like today and tomorrow in my location?",
	},
	{
		Key:      "5",
		Label:    "🎤 Chat",
		Kind:     KindVoice,
		Prompt:   "What do you want to say?",
		Template: TemplatePassthrough,
	},
	{
		Key:      "6",
		Label:    "⏰ Remind",
		Kind:     KindVoice,
		Prompt:   "What should I remind you about?",
		Template: TemplateReminder,
	},
	{
		Key:      "7",
		Label:    "📝 Note",
		Kind:     KindVoice,
		Prompt:   "What do you want to note?",
		Template: TemplateNote,
	},
	{
		Key:      "8",
		Label:    "🔍 Search",
		Kind:     KindVoice,
		Prompt:   "What do you want to search?",
		Template: TemplateSearch,
	},
	{
		Key:     "9",
		Label:   "📰 News",
		Kind:    KindInstant,
		Command: "Give me a quick 30-second AI and tech news briefing. What's happening today?",
	},
}

// Default returns the built-in menu.
func Default() *Menu {
	m, err := New(DefaultTitle, defaultItems...)
	if err != nil {
		panic("invalid default menu: " + err.Error())
	}
	return m
}
