package summarizer

// LLM prompt templates — data only, no logic. ${{TITLE}}/${{DATE}} placeholders
// are substituted with strings.ReplaceAll before the prompt is sent.

const systemPrompt = `You are an assistant producing structured summaries of sittings of the Parliament of Kenya (National Assembly and/or Senate) from their transcripts. Write in clear, neutral, journalistic English. Use Markdown headings and bullet points. Do not invent information not present in the transcript.`

// singleShotPrompt is used when the full transcript fits the context window.
const singleShotPrompt = `Summarize the following transcript of a sitting titled "${{TITLE}}" held on ${{DATE}}.

Produce:
1. A Markdown summary with "## " section headings grouping the sitting's business (e.g. Bills, Motions, Statements, Petitions, Committee Reports).
2. A Markdown timestamped table of contents under a "## Timeline" heading, with one bullet per major agenda item, in the form "- HH:MM:SS — description", estimated from context if exact timestamps are not stated.

The full transcript:

`

// chunkPrompt is used for each chunk in map-reduce mode. It explicitly tells
// the model not to attempt final formatting — that happens at the combine step.
const chunkPrompt = `You are summarizing a *portion* of a single sitting of the Parliament of Kenya.

This is not the complete transcript. Extract the relevant information — who spoke, what was discussed or decided, bill/motion/petition references, and any timestamps mentioned or inferable from context — so it can later be combined with summaries of the other chunks into one structured summary. Do not attempt to produce the final formatted output yourself; just extract faithfully.

Transcript chunk:

`

// combinePrompt reduces the ordered per-chunk summaries into the final
// report for a sitting titled "${{TITLE}}" held on ${{DATE}}.
const combinePrompt = `Combine the following chunk summaries, in order, into one structured report for the sitting titled "${{TITLE}}" held on ${{DATE}}.

Produce:
1. A Markdown summary with "## " section headings grouping the sitting's business (e.g. Bills, Motions, Statements, Petitions, Committee Reports). Merge duplicate or continued items across chunks into a single coherent entry.
2. A Markdown timestamped table of contents under a "## Timeline" heading, with one bullet per major agenda item, in the form "- HH:MM:SS — description".

Chunk summaries:

`
