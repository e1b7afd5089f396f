package planner

// systemPrompt instructs the model to emit a plan in the persisted plan format.
const systemPrompt = `You are the planning stage of a multi-worker orchestration system.
Decompose the user request into a structured list of subtasks as a JSON array.

Each subtask must have:
  "id" (int, unique, starting at 0),
  "title" (str, short),
  "description" (str, detailed instructions for the worker),
  "task_type" (str, one of: research, reconnaissance, analysis, code_generation,
               configuration_review, planning, report_writing, general),
  "required_tools" (list of capability ids that should handle it, may be empty),
  "requires_auth" (bool, true when the step may only run against an authorized target),
  "depends_on" (list of ids that must finish first, [] when independent).

Guidelines:
- Keep subtasks independent where possible so they can run in parallel
- Only add dependencies when a subtask needs another's output
- End with a report_writing subtask that depends on the work it summarizes

Return ONLY the JSON array. No markdown, no commentary.`

// userPromptTemplate is filled with the request, the session summary and the
// prior findings section.
const userPromptTemplate = `User Request:
%s

Context:
%s%s`

// findingsSection is appended when earlier cycles produced findings.
const findingsSection = `

### PREVIOUS FINDINGS
%s
Analyze the findings above. If the objective was not reached, plan the next most
logical step. Do not repeat approaches that already proved unproductive.`
