package dialog

import (
	"fmt"
	"strings"
)

// StopDirective is the fixed text returned to the agent when the human
// declines to continue. User input supplied with a stop decision is ignored.
const StopDirective = "The user has chosen to stop all further actions. Do not take any further action on this task. Stop immediately."

// RenderDirective formats a resolution as the directive text returned to the
// agent. Continuing embeds the user's input and every attachment in order:
// images as an inline reference, files and code with their content inlined.
func RenderDirective(res Resolution) string {
	if !res.ShouldContinue {
		return StopDirective
	}

	var b strings.Builder
	b.WriteString("The user has chosen to continue. Take the following response into account before proceeding:\n\n")
	b.WriteString(res.UserInput)
	for _, att := range res.Attachments {
		b.WriteString("\n\n")
		b.WriteString(renderAttachment(att))
	}
	return b.String()
}

func renderAttachment(a Attachment) string {
	switch a.Kind {
	case AttachmentImage:
		if a.MimeType != "" {
			return fmt.Sprintf("[attached image: %s (%s)]", a.Name, a.MimeType)
		}
		return fmt.Sprintf("[attached image: %s]", a.Name)
	case AttachmentCode:
		return fmt.Sprintf("Attached code %s:\n```\n%s\n```", a.Name, a.Content)
	default:
		return fmt.Sprintf("Attached file %s:\n%s", a.Name, a.Content)
	}
}
