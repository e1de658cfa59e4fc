package decompose

// decompositionPrompt asks whether a task is a single indivisible action and,
// if not, for an ordered subtask list. The response must be a single JSON
// object so parsing stays cheap and unambiguous.
const decompositionPrompt = `Decide whether the following task is a single
indivisible action or should be split into smaller steps.

Task:
%s

Respond with ONLY a JSON object (no markdown, no explanation):

If the task is a single indivisible action:
{"atomic": true}

If it needs to be split:
{"atomic": false, "subtasks": ["first step", "second step", ...]}

Rules:
- Subtasks must be listed in the exact order they need to be executed.
- Each subtask must be a self-contained instruction.
- Split into the smallest number of steps that are each truly atomic.
- Never return a single-element subtask list; that task is atomic.`
