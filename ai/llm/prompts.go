package llm

// Persona for the main completion; the grounding context block is appended
// under its own label when present.
const systemPersona = `You are a thoughtful assistant with a persistent memory of past conversations.
When background knowledge is provided below, ground your answer in it and prefer
it over guessing. Never mention the memory mechanism itself.`

const contextLabel = "Relevant knowledge from previous conversations:"

const classifyPrompt = `Classify the user query below.

Respond with a JSON object only:
{"isTrivial": <true if the query is a greeting, small talk, or an acknowledgement that needs no substantive answer>,
 "suggestedResponseLength": "<short|medium|long>"}

Query:
`

const piiPrompt = `You are a privacy auditor. Examine the user query and assistant response below for
personally identifiable information: person names, email addresses, phone numbers,
physical addresses, government ID numbers, medical information, financial details,
dates of birth, account credentials.

Respond with a JSON object only:
{"containsPII": <bool>, "piiTypes": ["<category>", ...], "explanation": "<one sentence>"}
`

const analyzePrompt = `You are a knowledge curator. Analyze the conversation transcript below and decide
whether it contains knowledge worth keeping.

Respond with a JSON object only:
{"isUseful": <bool - false for greetings, small talk, tests, or chatter with no reusable content>,
 "reason": "<short justification>",
 "topics": ["<up to 6 normalized topic names, lowercase, hyphen-separated>"],
 "insights": ["<up to 4 concrete, self-contained takeaways>"],
 "summary": "<2-3 sentence summary of the conversation>",
 "relatedTopics": ["<topics adjacent to but not covered by the conversation>"],
 "isComplete": <true if the conversation reached a natural end>}
`
