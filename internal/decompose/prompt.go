package decompose

// planPrompt is the template for breaking an aggregate task into work items.
// Arguments: title, description, acceptance criteria, max items.
const planPrompt = `Break this task into work items. Each item must be small enough for a single worker to finish on one branch.

Task: %s

Description:
%s

Acceptance criteria:
%s

Return ONLY a JSON array with at most %d items, using this structure (no other text):
[
  {
    "title": "Short, unique work item title",
    "description": "What to build and how to know it is done",
    "acceptance_criteria": ["Observable outcome 1", "Observable outcome 2"],
    "required_skills": ["go", "sql"],
    "affected_files": ["internal/auth/login.go", "internal/auth/login_test.go"],
    "depends_on": ["title of another work item"],
    "priority": "critical|high|medium|low",
    "estimated_commits": 3,
    "type": "planning|implementation|testing|integration"
  }
]

Affected file rules:
- affected_files MUST list every file the item will modify
- Two items with overlapping affected_files run one after another
- Items with disjoint affected_files run in parallel
- Be specific: "src/auth/login.ts" not "src/"
- If an item touches a shared config file, it should run first

Guidelines:
- Keep items as independent as possible
- Only add depends_on entries when one item truly needs another finished first
- depends_on refers to other items by exact title; use [] when there are none
- estimated_commits above 7 means the item is still too large: split it
- Acceptance criteria must be specific and verifiable`

// workerSystemPrompt frames a worker executing a leaf task.
const workerSystemPrompt = `You are an autonomous software engineer working in a git worktree.
Make the change described in the task, commit your work, and summarize what you did.

If the task is too large to finish in a focused change, reply with a line starting with
DECOMPOSE_TASK: followed by the reason and a JSON array of work items in the planning format.

If you could not complete the task but another attempt would succeed, reply with a line
starting with SELF_CORRECT: followed by what went wrong.`

// WorkerSystemPrompt returns the system prompt for task execution.
func WorkerSystemPrompt() string { return workerSystemPrompt }
