package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

const systemPrompt = `You are the orchestration agent of a SaaS operations platform. You receive
one normalized input (an email, webhook, worker event, or data change) plus
operational context, and decide what the platform should do.

Respond with a single JSON object, no prose, matching exactly:

{
  "category": "<short intent label, e.g. scheduling_request, support_question, lead_intake>",
  "urgency": "low" | "normal" | "high" | "critical",
  "confidence": <0.0-1.0>,
  "reasoning": "<one or two sentences>",
  "actions": [ <zero or more action objects> ]
}

Each action object has a "kind" plus one parameter object keyed by the kind:

- {"kind":"assign_pipeline","assign_pipeline":{"intake_id","pipeline_id","stage_id"?,"assignee_id"?}}
- {"kind":"create_event","create_event":{"title","start","end","attendees":[..],"location"?,"intake_id"?}}
- {"kind":"update_event","update_event":{"event_id","title"?,"start"?,"end"?,"add_attendees"?,"remove_attendees"?}}
- {"kind":"cancel_event","cancel_event":{"event_id","reason"?,"notify_attendees"?}}
- {"kind":"send_notification","send_notification":{"recipients"?:[..],"role"?,"subject","body","urgency"}}
- {"kind":"trigger_automation","trigger_automation":{"automation_id","payload"?}}
- {"kind":"escalate","escalate":{"reason","queue"?,"priority"?}}

Times are RFC 3339 UTC. Omit "assignee_id" to request least-loaded assignment.
Prefer escalate over guessing when the input is ambiguous; set confidence
honestly — low confidence routes the decision to a human for approval.`

// BuildPrompt renders one input + context into the provider-agnostic message
// list handed to the LLM client.
func BuildPrompt(input *models.AgentInput, dc *Context) []llm.ChatMessage {
	var b strings.Builder

	fmt.Fprintf(&b, "INPUT\nsource: %s\ntype: %s\npriority: %d\n", input.Source, input.Type, input.Priority)
	if input.Contact != nil && input.Contact.Email != "" {
		fmt.Fprintf(&b, "contact: %s <%s>\n", input.Contact.Name, input.Contact.Email)
	}
	fmt.Fprintf(&b, "content:\n%s\n", input.RawContent)

	if proposal, ok := input.Metadata["event_proposal"]; ok {
		fmt.Fprintf(&b, "\nA calendar invite was attached: %+v\n", proposal)
	}

	if len(dc.Pipelines) > 0 {
		b.WriteString("\nPIPELINES\n")
		for _, p := range dc.Pipelines {
			stages := make([]string, len(p.Stages))
			for i, s := range p.Stages {
				stages[i] = s.ID
			}
			members := make([]string, len(p.Members))
			for i, m := range p.Members {
				members[i] = m.ID
			}
			fmt.Fprintf(&b, "- %s (%s): stages [%s], members [%s]\n",
				p.ID, p.Name, strings.Join(stages, " "), strings.Join(members, " "))
		}
	}

	if len(dc.OpenIntakeCounts) > 0 {
		b.WriteString("\nOPEN INTAKES PER ASSIGNEE\n")
		assignees := make([]string, 0, len(dc.OpenIntakeCounts))
		for a := range dc.OpenIntakeCounts {
			assignees = append(assignees, a)
		}
		sort.Strings(assignees)
		for _, a := range assignees {
			fmt.Fprintf(&b, "- %s: %d\n", a, dc.OpenIntakeCounts[a])
		}
	}

	if len(dc.UpcomingEvents) > 0 {
		b.WriteString("\nUPCOMING EVENTS\n")
		for _, e := range dc.UpcomingEvents {
			fmt.Fprintf(&b, "- %s %q %s → %s attendees [%s]\n",
				e.ID, e.Title,
				e.Start.Format("2006-01-02T15:04Z"), e.End.Format("2006-01-02T15:04Z"),
				strings.Join(e.Attendees, " "))
		}
	}

	if len(dc.PriorDecisions) > 0 {
		b.WriteString("\nPRIOR DECISIONS IN THIS THREAD (newest first)\n")
		for _, d := range dc.PriorDecisions {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.2f): %s\n",
				d.State, d.Intent.Category, d.Confidence, d.Intent.Reasoning)
		}
	}

	return []llm.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
