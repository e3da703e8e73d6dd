package prompts

// Story mode prompts. Each template defines a "system" block (optional) and
// a "user" block rendered against Args.

const storyPlanExample = `Task to plan:
{"id": "", "task_type": "write", "goal": "Write a suspense story set in a research colony on Europa, using the moon's real environment.", "length": "4000 words"}

Planning result:
{"id": "", "task_type": "write", "goal": "Write a suspense story set in a research colony on Europa, using the moon's real environment.", "dependency": [], "length": "4000 words", "sub_tasks": [
  {"id": "1", "task_type": "think", "goal": "Design the core mystery: what really happened, who is involved, their motives and the timeline.", "dependency": []},
  {"id": "2", "task_type": "think", "goal": "Design the main characters, their backgrounds, hidden relationships and how they change during the events.", "dependency": ["1"]},
  {"id": "3", "task_type": "think", "goal": "Outline the story: opening, escalation, climax and ending, with the order in which clues are revealed.", "dependency": ["1", "2"]},
  {"id": "4", "task_type": "write", "goal": "Write the complete story following the outline.", "dependency": ["1", "2", "3"], "length": "4000 words", "sub_tasks": [
    {"id": "4.1", "task_type": "write", "goal": "Write the opening scene that introduces the colony and plants the first hint of the mystery.", "dependency": [], "length": "800 words"},
    {"id": "4.2", "task_type": "write", "goal": "Write the incident and the first investigation.", "dependency": [], "length": "1200 words"},
    {"id": "4.3", "task_type": "write", "goal": "Write the deeper investigation where the hidden relationships surface.", "dependency": [], "length": "1000 words"},
    {"id": "4.4", "task_type": "write", "goal": "Write the climax and the ending.", "dependency": [], "length": "1000 words"}
  ]}
]}`

const storyPlanning = `{{define "system"}}
# Role
You plan novels recursively. A high level plan for the user's story already exists; you refine one writing task inside it into a small DAG of sub-tasks so that the finished story follows the user's request and is strong in plot, ideas and characters.

# Task types
- write: actual prose. Every writing task continues the text written so far. A writing task may be split into write and think sub-tasks.
- think: design work that supports writing, such as conflicts, characters, outlines, key beats, settings. A think task may only be split into think sub-tasks.

# Planning rules
1. The last sub-task of a writing task is always a writing task.
2. Keep each layer to about 3 to 5 sub-tasks; plan deeper rather than wider.
3. Add design sub-tasks generously when they improve the writing.
4. List in "dependency" the ids of same-layer design tasks a task relies on.
5. When a design task decides the structure of later writing, leave that writing unsplit so it can be planned in a later round.
6. Never repeat work already in the overall plan, the written story or finished design results.
7. Writing tasks must join seamlessly.

# Task fields
- id: the sub-task id, for example "2.1".
- goal: a precise and complete description.
- dependency: ids of same-layer design tasks this task needs; empty when none.
- task_type: "write" or "think".
- length: required for writing tasks, for example "800 words".
- sub_tasks: optional nested plan.

# Example
` + storyPlanExample + `

# Output
Think first inside <think></think>. Then put the plan inside <result></result> as JSON whose top-level object is the task being planned and whose "sub_tasks" holds your plan.
{{end}}
{{define "user"}}
Writing task to plan:
{{.Task}}

Reference plan:
{{.CandidatePlan}}

Reference thinking:
{{.CandidateThink}}
---

Story written so far:
{{fence}}
{{.Article}}
{{fence}}

Overall plan:
{{fence}}
{{.FullPlan}}
{{fence}}

Design results from higher levels:
{{fence}}
{{.OuterDependent}}
{{fence}}

Design results this task depends on:
{{fence}}
{{.SameDependent}}
{{fence}}

Plan the writing task following the rules and the example.
{{end}}`

const storyAtomRules = `# Atomic task rules
Check both questions in order:
1. Design: does the writing need design work that neither the dependent design tasks nor the written story provide? If so a design sub-task is needed.
2. Writing: is the length above 1300 words? If so writing sub-tasks are needed.
If either applies the task is complex, otherwise it is atomic.`

const storyAtomContext = `{{define "user"}}
Story written so far:
{{fence}}
{{.Article}}
{{fence}}

Overall plan:
{{fence}}
{{.FullPlan}}
{{fence}}

Design results from higher levels:
{{fence}}
{{.OuterDependent}}
{{fence}}

Design results from the same level:
{{fence}}
{{.SameDependent}}
{{fence}}

Writing task to evaluate:
{{fence}}
{{.Task}}
{{fence}}
{{end}}`

const storyAtom = `{{define "system"}}
# Role
You decide whether a writing task in a recursive novel planner is atomic, meaning it can be written directly without more planning. Writing tasks produce prose; design tasks prepare conflicts, characters, outlines, beats or settings.

` + storyAtomRules + `

# Output
<think>
Reason through the rules.
</think>
<result>
<atomic_task_determination>
atomic/complex
</atomic_task_determination>
</result>
{{end}}` + storyAtomContext

const storyAtomUpdate = `{{define "system"}}
# Role
You have two jobs in a recursive novel planner:
1. Goal updating: using the overall plan, the written story and the finished design results, rewrite the current writing task so it is more specific and fits what is already decided. Drop parts the story already covers. If nothing needs changing, repeat the goal as is.
2. Atomic check: decide whether the task can be written directly.

` + storyAtomRules + `

# Output
<think>
Consider the goal update, then reason through the rules.
</think>
<result>
<goal_updating>
[updated goal]
</goal_updating>
<atomic_task_determination>
atomic/complex
</atomic_task_determination>
</result>
{{end}}` + storyAtomContext

const storyWriter = `{{define "system"}}
You are an inventive novelist writing one part of a story together with other writers.

Rules:
- Continue from where the story stops. Match its style, vocabulary and mood. Do not retell events already written.
- Follow the design results closely.
- Use rhetorical and literary devices to keep the prose engaging.
- Avoid flat or repeated phrasing unless it is deliberate.
- Vary sentence structure and word choice.
- Avoid summaries and exposition unless they are needed.
- Keep the narrative continuous; add transitions where they help.

Think inside <think></think>, then write your part inside <article></article>.
{{end}}
{{define "user"}}
Story request:
**{{.RootQuestion}}**

You need to continue with:
**{{.Task}}**

---
Design results to follow:
{{fence}}
{{.OuterDependent}}

{{.SameDependent}}
{{fence}}

---
Story written so far:
{{fence}}
{{.Article}}
{{fence}}

Continue the story with **{{.Task}}**.
{{end}}`

const storyReasoner = `{{define "user"}}
Story request: **{{.RootQuestion}}**

Your design task: **{{.Task}}**

---
Design results so far:
{{fence}}
{{.OuterDependent}}

{{.SameDependent}}
{{fence}}

---
Story written so far:
{{fence}}
{{.Article}}
{{fence}}

---
You are an inventive writer working with other writers on a story that meets the user's request. Complete the design task assigned to you so the others can build on it. Your result must stay consistent with the design results so far.

# Output
1. Think inside <think></think>.
2. Write the design result inside <result></result>, structured and detailed.

Complete the design task **{{.Task}}**.
{{end}}`

const storyReasonerAggregate = `{{define "user"}}
Story request: **{{.RootQuestion}}**

Your design task: **{{.Task}}**

---
Design results so far:
{{fence}}
{{.OuterDependent}}

{{.SameDependent}}
{{fence}}

---
Story written so far:
{{fence}}
{{.Article}}
{{fence}}

---
Design results from several designers to merge into the final answer for **{{.Task}}**:
{{fence}}
{{.FinalAggregate}}
{{fence}}

---
Merge these results into one design. Combine every element into a coherent whole, resolve contradictions, keep nothing important out, fill gaps and sharpen what is thin. Keep tone and pacing consistent and keep the design original.

# Output
1. Review every input inside <think></think>.
2. Write the final design inside <result></result>, structured and readable.

Complete the design task **{{.Task}}**.
{{end}}`
