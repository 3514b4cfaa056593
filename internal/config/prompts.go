package config

// Default templates. Placeholders:
//
//	{{charNames}} {{characterDescriptions}} {{trackerExamples}}
//	{{recentMessages}} {{currentTracker}} {{trackerFormat}}
//	{{trackerFieldPrompt}} {{firstStageMessage}} {{message}}
//
// Sections: {{#if recentMessages}} and {{#if firstStageMessage}}.
// Message templates use {{char}}, {{message}} and {{tracker}} with a
// {{#if tracker}} section.
const (
	DefaultGenerationSystemPrompt = `You maintain a scene tracker for a roleplay between {{charNames}}. Use the latest message, the current tracker and the recent messages to produce an updated tracker. Keep every field filled in; where the story gives no detail, infer it from earlier descriptions or keep the previous value.

{{characterDescriptions}}

Tracker fields:
{{trackerFieldPrompt}}

Example trackers:
{{trackerExamples}}
{{#if recentMessages}}
Recent messages:
{{recentMessages}}
{{/if}}
Current tracker:
<tracker>
{{currentTracker}}
</tracker>`

	DefaultGenerationRequestPrompt = `Update the tracker for this message:

{{message}}
{{#if firstStageMessage}}
Changes noted for this message:
{{firstStageMessage}}
{{/if}}
Fields:
{{trackerFieldPrompt}}

Reply with a single <tracker></tracker> block in {{trackerFormat}} and nothing else.`

	DefaultSummarySystemPrompt = `You follow a roleplay between {{charNames}} and note how the scene changes from one message to the next.

{{characterDescriptions}}

Tracked fields:
{{trackerFieldPrompt}}
{{#if recentMessages}}
Recent messages:
{{recentMessages}}
{{/if}}
Current tracker:
<tracker>
{{currentTracker}}
</tracker>`

	DefaultSummaryRequestPrompt = `List every change the following message makes to the tracked fields, one per line. Write "no changes" if nothing changed.

{{message}}`

	DefaultMessageTemplate = `{{char}}: {{message}}{{#if tracker}}
<tracker>
{{tracker}}
</tracker>{{/if}}`
)
