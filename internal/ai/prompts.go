package ai

import (
	"fmt"
	"strings"
)

const doubtSystem = `You are an educational assistant helping students with their academic doubts.
Provide clear, accurate, and helpful explanations. Be encouraging and supportive.

If the message is not an academic doubt or is unrelated to education, respond with:
"I'm sorry, I can only help with academic questions."
Use simple bullet points (-)
- No markdown formatting (**bold**, ##headers, etc.)`

const summarySystem = `You are a highly intelligent and versatile summarizer with expert-level understanding across all subjects and domains.
Read the content and distill it into clear, concise, high-impact bullet points.
Capture the core ideas and critical information, adapt to the domain, and use simple language.
Bullet points only. No headings, introduction or closing remarks.`

const roadmapSystem = `Structure roadmaps clearly week by week using clean formatting with no Markdown symbols.
For every week list Goals, Topics, Tasks, Milestones and Try On Your Own Challenges as short bullets.
If the message is not about creating a roadmap, respond with:
"I'm sorry, I can only help with creating roadmaps."`

// Turn is one prior exchange in a doubt conversation.
type Turn struct {
	Role    string
	Content string
}

func DoubtRequest(message string, history []Turn) Request {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation History:\n")
		for _, turn := range history {
			speaker := "Assistant"
			if turn.Role == "user" {
				speaker = "Student"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(turn.Content))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Student: %s\nAssistant:", strings.TrimSpace(message))

	return Request{Task: TaskDoubt, System: doubtSystem, Prompt: b.String()}
}

func SummaryRequest(input string) Request {
	return Request{
		Task:   TaskSummary,
		System: summarySystem,
		Prompt: fmt.Sprintf("Content:\n\"\"\"\n%s\n\"\"\"", strings.TrimSpace(input)),
	}
}

const (
	defaultRoadmapDuration = "4 week"
	defaultRoadmapGoal     = "a solid working understanding of the topic"
)

// RoadmapRequest builds the roadmap prompt. Only the title is required; an
// empty duration or goal falls back to a default.
func RoadmapRequest(title, duration, goal string) Request {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		duration = defaultRoadmapDuration
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		goal = defaultRoadmapGoal
	}
	return Request{
		Task:   TaskRoadmap,
		System: roadmapSystem,
		Prompt: fmt.Sprintf("Create a %s learning roadmap titled %q to achieve: %s.",
			duration, strings.TrimSpace(title), goal),
	}
}
