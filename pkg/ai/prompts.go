package ai

const ComparePrompt = `
# Task Context
You are a careful assistant that decides whether two entities from a knowledge graph refer to the same real-world thing.

# Background Data
## Entity A
- Name: %s
- Type: %s
- Description: %s

## Entity B
- Name: %s
- Type: %s
- Description: %s

# Detailed Task Description & Rules
- Decide between exactly three outcomes:
  * MERGE: A and B are the same real-world entity (e.g., "IBM" and "IBM Corporation").
  * LINK: A and B are distinct entities that are closely related and should be connected (e.g., "Amazon" and "Amazon Web Services").
  * KEEP_SEPARATE: A and B are unrelated or too ambiguous to connect.
- Be conservative: distinct legal entities, business units, or corporate structures must NOT be merged (e.g., "EWE" vs "EWE AG").
- Naming variations alone (case, punctuation, legal suffixes, abbreviations, honorifics) justify MERGE only when the descriptions are compatible.
- When you choose MERGE, pick the most complete, commonly used name as the canonical name.
- Express your confidence as a number between 0.0 and 1.0.

# Examples
MERGE: "Microsoft" / "Microsoft Corporation", "Dr. Jane Smith" / "Jane Smith"
LINK: "BMW" / "BMW Group", "Google" / "Google DeepMind"
KEEP_SEPARATE: "Paris" (city) / "Paris Hilton" (person)

# Output Formatting
Return a JSON object with this structure:
{
  "decision": "MERGE" | "LINK" | "KEEP_SEPARATE",
  "confidence": <number between 0.0 and 1.0>,
  "reasoning": "<one or two sentences explaining the decision>",
  "canonical_name": "<the name to keep; only meaningful for MERGE>"
}
`

const ExtractPrompt = `
# Task Context
You are tasked with extracting structured entity, relationship, and event information from the provided text. Capture all details explicitly present in the text, without omission.

# Background Data
- **Entity_types:** [%s]
- **Document_name:** [%s]

The document name may contain hints about the primary entity. Use it only if the text itself does not clearly specify an entity.

# Detailed Task Description & Rules
## Entity Extraction
1. Identify all entities of the specified types.
2. For each entity, extract:
   - **name:** The name of the entity, written in ALL CAPITAL LETTERS.
   - **type:** One of the provided types.
   - **description:** A comprehensive description of all attributes, roles, and activities explicitly stated in the text.

## Relationship Extraction
1. Identify all relationships explicitly stated between extracted entities.
2. For each relationship, extract:
   - **source:** Name of the source entity.
   - **target:** Name of the target entity.
   - **description:** What connects the two entities.
   - **strength:** A number between 1 and 10 reflecting how strong or well-evidenced the connection is.

## Event Extraction
1. Identify dated occurrences tied to a specific entity (founding, acquisition, release, appointment).
2. For each event, extract:
   - **entity:** Name of the entity the event belongs to.
   - **description:** What happened.
   - **date:** The date as written in the text (e.g., "2021", "2021-06", "2021-06-15").

# Immediate Task Description or Request
Extract every entity, relationship, and event from the following text:

%s

# Output Formatting
Return a JSON object with this structure:
{
  "entities": [{"name": string, "type": string, "description": string}],
  "relationships": [{"source": string, "target": string, "description": string, "strength": number}],
  "events": [{"entity": string, "description": string, "date": string}]
}
`

const CommunityReportPrompt = `
# Task Context
You are an analyst writing a structured report about a community of closely related entities in a knowledge graph. The report is used for high-level question answering, so it must stand on its own without access to the underlying graph.

# Background Data
%s

# Detailed Task Description & Rules
- Write a short, specific **title** naming the community's key entities.
- Write an executive **summary** of the community's overall structure: what its entities are, how they relate, and what is notable about them.
- Assign an importance **rating** between 0.0 and 10.0 reflecting the community's significance within the graph.
- Provide 3 to 5 **findings**: the most important concrete insights about the community, each with a one-line summary and a longer explanation grounded in the provided data.
- Do not invent information that is not supported by the background data.

# Output Formatting
Return a JSON object with this structure:
{
  "title": string,
  "summary": string,
  "rating": number,
  "rating_explanation": string,
  "findings": [{"summary": string, "explanation": string}]
}
`
