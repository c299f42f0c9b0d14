package classifier

const classifySystemPrompt = `You split a short personal memo transcript into one or more logical memos and classify each.

Categories: media, reminder, shopping, journal, tarot, idea, todo, note.
A transcript mentioning several distinct intents (e.g. a reminder and a shopping list) yields several memos.

For each memo include only the fields block matching its category:
- media: {"title", "media_type" (movie|tv|game), "release_year"?, "external_id"?}
- reminder: {"action", "when"? (verbatim temporal phrase), "recurrence"?}
- shopping: {"items": [{"name", "quantity"?}]}
- journal: {"mood"?, "topics"?}
- tarot: {"cards"?, "spread"?, "question"?}
- idea: {"summary", "next_step"?}
- todo, note: no fields block

Output JSON only, no other text:
{
  "language": "two-letter code",
  "memos": [
    {
      "category": "...",
      "confidence": 0.0-1.0,
      "tags": ["..."],
      "needs_review": false,
      "media": {...} | "reminder": {...} | "shopping": {...} | "journal": {...} | "tarot": {...} | "idea": {...}
    }
  ]
}`

const visionPrompt = `Describe the content of this image as a short memo transcript in the first person, capturing any text, lists, titles, or dates visible. Output plain text only.`
